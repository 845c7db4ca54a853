package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const maxTransactionLine = 1 << 20

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions or categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "transactions FILE",
		Short: "Import normalized transactions from JSON Lines (- for stdin)",
		Long: `Import normalized transactions, one JSON object per line:

  {"id":"tx-1","org_id":"acme","date":"2024-03-01T00:00:00Z",
   "amount_cents":"-1250","currency":"USD","description":"STARBUCKS #123",
   "merchant_name":"Starbucks","mcc":"5814"}

Transactions that already exist are updated in place.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(runImportTransactions),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "categories FILE",
		Short: "Import the category registry from YAML (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runImportCategories),
	})

	return cmd
}

func runImportTransactions(cmd *cobra.Command, args []string, a *app) error {
	r, closeFn, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	txs, err := decodeTransactions(r)
	if err != nil {
		return common.NewUserError("invalid transaction file", err)
	}
	if len(txs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No transactions found"))
		return nil
	}
	if err := a.store.SaveTransactions(cmd.Context(), txs); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d transactions", len(txs))))
	return nil
}

func runImportCategories(cmd *cobra.Command, args []string, a *app) error {
	r, closeFn, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	categories, err := decodeCategories(r)
	if err != nil {
		return common.NewUserError("invalid category file", err)
	}
	if err := a.store.SaveCategories(cmd.Context(), categories); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d categories", len(categories))))
	return nil
}

// decodeTransactions reads JSON Lines. Blank lines are skipped and errors
// name the offending line.
func decodeTransactions(r io.Reader) ([]model.NormalizedTransaction, error) {
	var txs []model.NormalizedTransaction

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxTransactionLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var tx model.NormalizedTransaction
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tx); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tx.ID == "" || tx.OrgID == "" {
			return nil, fmt.Errorf("line %d: %w: id and org_id are required", line, common.ErrInvalidInput)
		}
		if _, err := model.ParseCents(tx.AmountCents); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tx.Currency == "" {
			tx.Currency = "USD"
		}
		tx.Currency = strings.ToUpper(tx.Currency)
		tx.Date = tx.Date.UTC()
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return txs, nil
}

type categoryFile struct {
	Categories []model.Category `yaml:"categories"`
}

// decodeCategories reads a category registry file. Categories without an id
// get the stable id derived from their slug.
func decodeCategories(r io.Reader) ([]model.Category, error) {
	var f categoryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty category file", common.ErrInvalidInput)
		}
		return nil, err
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", common.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(f.Categories))
	for i := range f.Categories {
		c := &f.Categories[i]
		c.Slug = strings.TrimSpace(c.Slug)
		if c.Slug == "" {
			return nil, fmt.Errorf("%w: category %d has no slug", common.ErrInvalidInput, i+1)
		}
		if seen[c.Slug] {
			return nil, fmt.Errorf("%w: slug %q appears twice", common.ErrDuplicateEntry, c.Slug)
		}
		seen[c.Slug] = true
		if !c.Type.Valid() {
			return nil, fmt.Errorf("%w: category %q has unknown type %q", common.ErrInvalidInput, c.Slug, c.Type)
		}
		if c.ID == "" {
			c.ID = rules.CategoryID(c.Slug)
		}
		if c.Name == "" {
			c.Name = c.Slug
		}
	}
	return f.Categories, nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
