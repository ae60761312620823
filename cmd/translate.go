package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
)

var translateLang string

var translateCmd = &cobra.Command{
	Use:   "translate KEY [name=value...]",
	Short: "Resolve a message key in the configured translations",
	Long: `Resolve KEY from the message catalogs in i18n.messages_dir and
interpolate the given parameters into its {name} placeholders.

Examples:
  reactive translate greeting name=Ada
  reactive translate cart.items count=3 --lang de`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVar(&translateLang, "lang", "", "Language (default is i18n.default_language)")
}

// translation is the structured output of the translate command.
type translation struct {
	Key      string `json:"key" yaml:"key"`
	Language string `json:"language" yaml:"language"`
	Text     string `json:"text" yaml:"text"`
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	t, err := newTranslator(cfg, nil)
	if err != nil {
		return err
	}

	lang := t.Language()
	if translateLang != "" {
		lang = t.Negotiate(translateLang)
	}
	result := translation{Key: args[0], Language: lang, Text: t.TranslateIn(lang, args[0], params)}

	return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, result.Text)
		return err
	})
}

func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "parameter must be name=value: "+arg)
		}
		params[name] = value
	}
	return params, nil
}
