package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/memory"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewTokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}

	var model string
	var asConversation bool
	countCmd := &cobra.Command{
		Use:   "count [file]",
		Short: "Count the tokens of a file (stdin when omitted) with the tokenizer of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = viper.GetString("openai.model")
			}
			counter, err := memory.NewTokenCounter(model)
			if err != nil {
				return err
			}

			var count int
			if asConversation {
				if len(args) == 0 {
					return errors.New("--conversation needs a file")
				}
				conv, err := conversation.LoadFromFile(args[0])
				if err != nil {
					return err
				}
				count, err = counter.CountConversation(conv)
				if err != nil {
					return err
				}
			} else {
				input, err := readInput(args)
				if err != nil {
					return err
				}
				count, err = counter.Count(input)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Model: %s\n", model)
			_, _ = fmt.Fprintf(w, "Codec: %s\n", counter.Name())
			_, err = fmt.Fprintf(w, "Total tokens: %d\n", count)
			return err
		},
	}
	countCmd.Flags().StringVar(&model, "model", "", "Model whose tokenizer is used (default openai.model)")
	countCmd.Flags().BoolVar(&asConversation, "conversation", false,
		"Treat the file as a saved conversation and count it the way the memory compactor does")
	cmd.AddCommand(countCmd)

	return cmd
}

func readInput(args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s", args[0])
	}
	return string(b), nil
}
