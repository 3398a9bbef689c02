package main

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"contractflow/internal/api"
	"contractflow/internal/client"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var number, contractType, createdBy, contentType string
	var autoOCR, noAutoOCR bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a contract document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if autoOCR && noAutoOCR {
				return fmt.Errorf("--ocr and --no-ocr are mutually exclusive")
			}
			params := client.UploadParams{
				Path:           args[0],
				ContractNumber: number,
				ContractType:   contractType,
				CreatedBy:      createdBy,
				ContentType:    contentType,
			}
			if params.ContentType == "" {
				params.ContentType = mime.TypeByExtension(filepath.Ext(args[0]))
			}
			if params.CreatedBy == "" {
				params.CreatedBy = os.Getenv("USER")
			}
			switch {
			case autoOCR:
				params.AutoOCR = &autoOCR
			case noAutoOCR:
				off := false
				params.AutoOCR = &off
			}
			return ctx.withClient(func(c *client.Client) error {
				contract, err := c.Upload(cmd.Context(), params)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, contract)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded contract %s (%s) as %s\n", contract.ID, contract.ContractNumber, stateLabel(contract.State))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&number, "number", "n", "", "Contract number")
	cmd.Flags().StringVarP(&contractType, "type", "t", "", "Contract type: purchase, sales or lease")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Uploader name (defaults to $USER)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the detected content type")
	cmd.Flags().BoolVar(&autoOCR, "ocr", false, "Request OCR immediately")
	cmd.Flags().BoolVar(&noAutoOCR, "no-ocr", false, "Skip automatic OCR")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var cursor string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				page, err := collectPages(cmd, all, cursor, func(cursor string) (api.ContractListResponse, error) {
					return c.List(cmd.Context(), limit, cursor)
				})
				if err != nil {
					return err
				}
				return printContractPage(cmd, ctx, page, "No contracts")
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from a previous page's next cursor")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Follow cursors until every page is listed")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				contract, err := c.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, contract)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderContractDetail(contract))
				return nil
			})
		},
	}
}

func newOCRTextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr-text <id>",
		Short: "Print a contract's extracted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				text, err := c.OCRText(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.OCRTextResponse{ContractID: args[0], Text: text})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, text)
				if !strings.HasSuffix(text, "\n") {
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newRequestOCRCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr <id>",
		Short: "Request OCR for an uploaded contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				contract, err := c.RequestOCR(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTransition(cmd, ctx, contract, "OCR requested")
			})
		},
	}
}

func newQueueReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-review <id>",
		Short: "Queue an extracted contract for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				contract, err := c.QueueForReview(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTransition(cmd, ctx, contract, "Queued for review")
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Contract %s: %s\n", resp.ContractID, strings.ReplaceAll(resp.Outcome, "_", " "))
				return nil
			})
		},
	}
}

func newBatchDeleteCommand(ctx *commandContext) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "batch-delete [id...]",
		Short: "Delete many contracts",
		Long:  "Delete every listed contract. Ids come from arguments, or one per line from --from-file (use - for stdin).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := append([]string(nil), args...)
			if fromFile != "" {
				more, err := readIDs(cmd, fromFile)
				if err != nil {
					return err
				}
				ids = append(ids, more...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("no contract ids given")
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.BatchDelete(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Results))
				for _, r := range resp.Results {
					rows = append(rows, []string{r.ID, strings.ReplaceAll(r.Outcome, "_", " "), r.Error})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable([]string{"ID", "Outcome", "Error"}, rows, nil))
				fmt.Fprintln(out, summarizeCounts(resp.Counts))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "Read ids from a file, one per line")
	return cmd
}

func readIDs(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open id list: %w", err)
		}
		defer f.Close()
		r = f
	}
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

func collectPages(cmd *cobra.Command, all bool, cursor string, fetch func(string) (api.ContractListResponse, error)) (api.ContractListResponse, error) {
	page, err := fetch(cursor)
	if err != nil || !all {
		return page, err
	}
	combined := page
	for combined.NextCursor != "" {
		if err := cmd.Context().Err(); err != nil {
			return combined, err
		}
		next, err := fetch(combined.NextCursor)
		if err != nil {
			return combined, err
		}
		combined.Contracts = append(combined.Contracts, next.Contracts...)
		combined.NextCursor = next.NextCursor
	}
	return combined, nil
}

func printContractPage(cmd *cobra.Command, ctx *commandContext, page api.ContractListResponse, empty string) error {
	if ctx.JSONMode() {
		if page.Contracts == nil {
			page.Contracts = []api.Contract{}
		}
		return writeJSON(cmd, page)
	}
	out := cmd.OutOrStdout()
	if len(page.Contracts) == 0 {
		fmt.Fprintln(out, empty)
		return nil
	}
	fmt.Fprint(out, renderTable(
		[]string{"ID", "Number", "Type", "State", "Created By", "Updated"},
		buildContractRows(page.Contracts),
		nil,
	))
	if page.NextCursor != "" {
		fmt.Fprintf(out, "More results: --cursor %s\n", page.NextCursor)
	}
	return nil
}

func buildContractRows(contracts []api.Contract) [][]string {
	rows := make([][]string, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, []string{
			shortID(c.ID),
			c.ContractNumber,
			c.ContractType,
			stateLabel(c.State),
			c.CreatedBy,
			c.UpdatedAt,
		})
	}
	return rows
}

func printTransition(cmd *cobra.Command, ctx *commandContext, contract api.Contract, verb string) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, contract)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: contract %s is now %s\n", verb, contract.ID, stateLabel(contract.State))
	return nil
}

func renderContractDetail(c api.Contract) string {
	rows := [][]string{
		{"ID", c.ID},
		{"Number", c.ContractNumber},
		{"Type", c.ContractType},
		{"State", stateLabel(c.State)},
		{"File", c.FileRef},
		{"Filename", c.Filename},
		{"Size", strconv.FormatInt(c.Size, 10)},
		{"Created By", c.CreatedBy},
		{"Created", c.CreatedAt},
		{"Updated", c.UpdatedAt},
		{"Version", strconv.FormatInt(c.Version, 10)},
		{"OCR Text", yesNo(c.HasOCRText)},
	}
	if c.OCRJobID != "" {
		rows = append(rows, []string{"OCR Job", c.OCRJobID})
	}
	if c.OCRError != "" {
		rows = append(rows, []string{"OCR Error", c.OCRError})
	}
	if x := c.Extraction; x != nil {
		rows = append(rows, extractionRows(x)...)
	}
	if c.QueuedAt != "" {
		rows = append(rows, []string{"Queued", c.QueuedAt})
	}
	if d := c.ReviewDecision; d != nil {
		rows = append(rows,
			[]string{"Decision", stateLabel(d.Decision)},
			[]string{"Decided By", d.DecidedBy},
			[]string{"Decided", d.Timestamp},
		)
		if d.Comment != "" {
			rows = append(rows, []string{"Comment", d.Comment})
		}
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func extractionRows(x *api.Extraction) [][]string {
	rows := [][]string{{"Extraction", stateLabel(x.Status)}}
	if x.Error != "" {
		return append(rows, []string{"Extraction Error", x.Error})
	}
	if x.Status != "completed" {
		return rows
	}
	confidence := strconv.FormatFloat(x.Confidence, 'f', 2, 64)
	if x.RequiresReview {
		confidence += " (needs review)"
	}
	rows = append(rows, []string{"Confidence", confidence})
	if x.TotalAmount != nil {
		rows = append(rows, []string{"Amount", humanize.CommafWithDigits(*x.TotalAmount, 2)})
	}
	for _, field := range [][2]string{
		{"Subject", x.SubjectMatter},
		{"Signed", x.SignDate},
		{"Effective", x.EffectiveDate},
		{"Expires", x.ExpireDate},
	} {
		if field[1] != "" {
			rows = append(rows, []string{field[0], field[1]})
		}
	}
	for _, p := range x.Parties {
		label := "Party B"
		if p.PartyType == "party_a" {
			label = "Party A"
		}
		value := p.PartyName
		if p.TaxNumber != "" {
			value += " (tax " + p.TaxNumber + ")"
		}
		rows = append(rows, []string{label, value})
	}
	return rows
}

func summarizeCounts(counts map[string]int) string {
	order := []string{"deleted", "already_deleted", "not_found", "failed", "cancelled"}
	parts := make([]string, 0, len(order))
	for _, key := range order {
		if n := counts[key]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ReplaceAll(key, "_", " ")))
		}
	}
	if len(parts) == 0 {
		return "Nothing deleted"
	}
	return "Summary: " + strings.Join(parts, ", ")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
