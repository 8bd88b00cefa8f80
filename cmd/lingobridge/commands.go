package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pelden/lingobridge/internal/config"
	"github.com/pelden/lingobridge/internal/extract"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/translate"
)

func langFlags(cmd *cobra.Command) (history.Language, history.Language, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	src, err := history.ParseLanguage(from)
	if err != nil {
		return "", "", fmt.Errorf("--from: %w", err)
	}
	tgt, err := history.ParseLanguage(to)
	if err != nil {
		return "", "", fmt.Errorf("--to: %w", err)
	}
	if src == tgt {
		return "", "", fmt.Errorf("--from and --to must differ")
	}
	return src, tgt, nil
}

// --- translate ---

var translateCmd = &cobra.Command{
	Use:   "translate [text...]",
	Short: "Translate text between Japanese and Dzongkha",
	Long: `Translate text between Japanese and Dzongkha.

Cached translations from the shared library are returned immediately;
fresh translations are generated by the AI engine and queued for review.

Examples:
  lingobridge translate こんにちは
  lingobridge translate --from dzongkha --to japanese བཀྲ་ཤིས་བདེ་ལེགས།
  lingobridge translate --file phrases.txt
  lingobridge translate --pdf chapter1.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, tgt, err := langFlags(cmd)
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		pdfPath, _ := cmd.Flags().GetString("pdf")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var lines []string
		switch {
		case pdfPath != "":
			lines, err = extract.PDFText(pdfPath)
			if err != nil {
				return fmt.Errorf("extracting PDF text: %w", err)
			}
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			lines = extract.SplitLines(string(data))
		default:
			if len(args) == 0 {
				return fmt.Errorf("text argument, --file, or --pdf is required")
			}
			text := strings.Join(args, " ")

			resp, err := client.post(cmd.Context(), "/translate", map[string]string{
				"text":        text,
				"source_lang": string(src),
				"target_lang": string(tgt),
			})
			if err != nil {
				return err
			}
			var outcome translate.Outcome
			if err := decodeJSON(resp, &outcome); err != nil {
				return err
			}
			printOutcome(&outcome)
			return nil
		}

		if len(lines) == 0 {
			return fmt.Errorf("no text found to translate")
		}

		printStep("Translating %d lines...", len(lines))
		resp, err := client.post(cmd.Context(), "/translate/batch", map[string]any{
			"texts":       lines,
			"source_lang": string(src),
			"target_lang": string(tgt),
		})
		if err != nil {
			return err
		}
		var batch struct {
			Outcomes []*translate.Outcome `json:"outcomes"`
			Errors   []string             `json:"errors"`
		}
		if err := decodeJSON(resp, &batch); err != nil {
			return err
		}

		for _, o := range batch.Outcomes {
			if o == nil {
				continue
			}
			printOutcome(o)
			fmt.Println()
		}
		for _, e := range batch.Errors {
			printError("%s", e)
		}
		if n := len(batch.Errors); n > 0 {
			return fmt.Errorf("%d of %d lines failed", n, len(lines))
		}
		printSuccess("Translated %d lines", len(lines))
		return nil
	},
}

func printOutcome(o *translate.Outcome) {
	printResult(&o.Result)
	if o.Cached {
		fmt.Printf("  %s\n", colorize(colorYellow, "(from library)"))
	} else if o.ItemID != "" {
		fmt.Printf("  %s\n", colorize(colorCyan, "queued for review: "+o.ItemID))
	}
}

func printResult(r *history.TranslationResult) {
	fmt.Printf("%s %s\n", colorize(colorBold, "Source:"), r.SourceText)
	if r.SourceTransliteration != "" {
		fmt.Printf("        %s\n", r.SourceTransliteration)
	}
	fmt.Printf("%s %s\n", colorize(colorBold, "Target:"), r.TargetText)
	if r.TargetTransliteration != "" {
		fmt.Printf("        %s\n", r.TargetTransliteration)
	}
	for _, w := range r.Breakdown {
		line := fmt.Sprintf("  %s → %s", w.Original, w.Translated)
		if w.Transliteration != "" {
			line += fmt.Sprintf(" (%s)", w.Transliteration)
		}
		if w.SourceTerm != "" && w.SourceTerm != history.NoSourceTerm {
			line += fmt.Sprintf(" [%s]", w.SourceTerm)
		}
		fmt.Println(line)
	}
}

func init() {
	translateCmd.Flags().String("from", "japanese", "source language (japanese or dzongkha)")
	translateCmd.Flags().String("to", "dzongkha", "target language (japanese or dzongkha)")
	translateCmd.Flags().String("file", "", "translate each non-empty line of a text file")
	translateCmd.Flags().String("pdf", "", "translate each line of text extracted from a PDF")
}

// --- lookup ---

var lookupCmd = &cobra.Command{
	Use:   "lookup <text>",
	Short: "Check the shared library for an existing translation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, tgt, err := langFlags(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/lookup?text=%s&source_lang=%s&target_lang=%s",
			url.QueryEscape(text), src, tgt)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Found  bool                       `json:"found"`
			Result *history.TranslationResult `json:"result"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Found {
			fmt.Println("No stored translation found.")
			return nil
		}
		printResult(result.Result)
		return nil
	},
}

func init() {
	lookupCmd.Flags().String("from", "japanese", "source language (japanese or dzongkha)")
	lookupCmd.Flags().String("to", "dzongkha", "target language (japanese or dzongkha)")
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage translations pending review",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List translations pending review, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listItems(cmd, client, "/review")
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single review item as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/review/"+args[0])
		if err != nil {
			return err
		}
		var item history.HistoryItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a review item, moving it into the shared library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/review/"+args[0]+"/approve", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Approved: now in library as %s", result["id"])
		return nil
	},
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a review item's translation in $EDITOR",
	Long: `Edit a review item's translation in $EDITOR.

Acquires an edit lock before opening the editor so concurrent reviewers
see the item as locked, and releases it after saving. If another
reviewer holds the lock, the edit is refused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		// Take the edit lock first.
		lockResp, err := client.post(ctx, "/review/"+id+"/lock", nil)
		if err != nil {
			return err
		}
		var lockResult struct {
			Granted   bool  `json:"granted"`
			ExpiresAt int64 `json:"expires_at"`
		}
		if err := decodeJSON(lockResp, &lockResult); err != nil {
			return err
		}
		if !lockResult.Granted {
			printWarning("Item is being edited by someone else. Try again later.")
			return fmt.Errorf("edit lock not granted")
		}
		defer func() {
			if _, err := client.delete(ctx, "/review/"+id+"/lock"); err != nil {
				printWarning("could not release edit lock: %v", err)
			}
		}()
		expires := time.UnixMilli(lockResult.ExpiresAt)
		printStep("Edit lock acquired (expires %s)", expires.Format("15:04:05"))

		resp, err := client.get(ctx, "/review/"+id)
		if err != nil {
			return err
		}
		var item history.HistoryItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		edited, err := editInEditor(item.Result)
		if err != nil {
			return err
		}

		saveResp, err := client.put(ctx, "/review/"+id+"/result", edited)
		if err != nil {
			return err
		}
		var saveResult map[string]string
		if err := decodeJSON(saveResp, &saveResult); err != nil {
			return err
		}

		printSuccess("Saved changes to %s", id)
		return nil
	},
}

// editInEditor round-trips a translation result through $EDITOR as JSON.
func editInEditor(result history.TranslationResult) (*history.TranslationResult, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp("", "lingobridge-edit-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return nil, err
	}
	tmpFile.Close()

	editorCmd := exec.Command(editor, tmpPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return nil, fmt.Errorf("editor exited with error: %w", err)
	}

	editedData, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}

	var edited history.TranslationResult
	if err := json.Unmarshal(editedData, &edited); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &edited, nil
}

func init() {
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewEditCmd)
}

// --- library ---

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List approved translations in the shared library",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listItems(cmd, client, "/library")
	},
}

func listItems(cmd *cobra.Command, client *apiClient, path string) error {
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var items []history.HistoryItem
	if err := decodeJSON(resp, &items); err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("No items found.")
		return nil
	}

	for _, item := range items {
		ts := time.UnixMilli(item.Timestamp).Format("2006-01-02 15:04")
		source := item.Result.SourceText
		if len([]rune(source)) > 40 {
			source = string([]rune(source)[:40]) + "..."
		}
		locked := ""
		if item.EditLock != nil && !item.EditLock.Expired(time.Now()) {
			locked = colorize(colorYellow, " [editing]")
		}
		fmt.Printf("%s  %s  %s → %s  %s%s\n",
			colorize(colorCyan, item.ID[:8]),
			ts,
			item.SourceLang,
			item.TargetLang,
			source,
			locked,
		)
	}
	return nil
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all pending review items",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL pending review items. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/review")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Review queue cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deleting all review items")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
