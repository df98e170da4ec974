package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/app"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/transcript"
)

const continuePrompt = "Do you want the characters to continue the discussion? (y/n): "

var askFlags struct {
	personas    []string
	rounds      int
	interactive bool
	format      string
}

var askCmd = &cobra.Command{
	Use:   "ask <topic>",
	Short: "Run a discussion on a topic in the terminal",
	Long: `Runs one or more discussion rounds on the given topic and prints each
round's transcript with per-turn sentiment.

With --interactive the command asks after every round whether the panel
should keep talking. Otherwise it runs --rounds rounds and stops.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringSliceVarP(&askFlags.personas, "personas", "p", nil, "comma-separated characters (default: Sheldon,Leonard,Penny,Howard)")
	f.IntVarP(&askFlags.rounds, "rounds", "n", 1, "rounds to run when not interactive")
	f.BoolVarP(&askFlags.interactive, "interactive", "i", false, "ask whether to continue after each round")
	f.StringVar(&askFlags.format, "format", formatTable, "output format: table|markdown|json")
}

func runAsk(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return errors.New("topic must not be blank")
	}
	if askFlags.rounds < 1 {
		return errors.New("--rounds must be at least 1")
	}
	if err := validFormat(askFlags.format); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	built, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer built.Cleanup()

	names := askFlags.personas
	if names != nil {
		resolved, err := built.Registry.ResolveAll(names)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, p := range resolved {
			names = append(names, p.Name)
		}
	}

	r := askRunner{
		built: built,
		out:   cmd.OutOrStdout(),
		in:    bufio.NewReader(cmd.InOrStdin()),
	}
	return r.run(cmd, topic, names)
}

type askRunner struct {
	built *app.BuildResult
	out   io.Writer
	in    *bufio.Reader
}

func (r askRunner) run(cmd *cobra.Command, topic string, names []string) error {
	ctx := cmd.Context()
	sess := r.built.Sessions.Create(topic, names)
	defer r.built.Sessions.End(sess.ID)

	out, err := r.built.Orchestrator.Start(ctx, sess.ID, topic, names)
	for completed := 1; ; completed++ {
		if err := r.report(out, err); err != nil {
			return err
		}

		proceed := completed < askFlags.rounds
		if askFlags.interactive {
			proceed, err = r.confirm()
			if err != nil {
				return err
			}
		}
		if !proceed {
			_, err := r.built.Orchestrator.Decide(ctx, sess.ID, false)
			return err
		}
		out, err = r.built.Orchestrator.Decide(ctx, sess.ID, true)
	}
}

// report prints the turns of the round that just ran. A failed round still
// prints what was appended before the failure.
func (r askRunner) report(out discussion.Outcome, err error) error {
	if errors.Is(err, discussion.ErrInvalidAction) {
		return fmt.Errorf("nothing to run: %s", out.Status.Message)
	}
	if out.Session != nil {
		if rerr := renderTranscript(r.out, roundTurns(out.Transcript, err), askFlags.format); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}
	if askFlags.format != formatJSON {
		fmt.Fprintln(r.out, out.Status.Message)
	}
	return nil
}

func (r askRunner) confirm() (bool, error) {
	fmt.Fprint(r.out, continuePrompt)
	line, err := r.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// roundTurns picks the turns appended by the action that returned err. A
// failed round contributes only the turns before its failure, possibly none.
func roundTurns(records []transcript.TurnRecord, err error) []transcript.TurnRecord {
	var re *discussion.RoundError
	if errors.As(err, &re) {
		return turnsOfRound(records, re.Round)
	}
	if err != nil {
		return nil
	}
	return latestRound(records)
}

func turnsOfRound(records []transcript.TurnRecord, round int) []transcript.TurnRecord {
	var out []transcript.TurnRecord
	for _, r := range records {
		if r.Round == round {
			out = append(out, r)
		}
	}
	return out
}

func latestRound(records []transcript.TurnRecord) []transcript.TurnRecord {
	if len(records) == 0 {
		return nil
	}
	last := records[len(records)-1].Round
	i := len(records)
	for i > 0 && records[i-1].Round == last {
		i--
	}
	return records[i:]
}
