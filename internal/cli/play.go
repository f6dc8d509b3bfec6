package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
)

// NewPlayCmd plays one category in the terminal against the configured store.
func NewPlayCmd(configPath *string) *cobra.Command {
	var userID, category string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the unanswered questions of a category in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			// keep the terminal for the quiz
			cfg.Log.Level = "error"
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			svc := newServices(cfg, b.store, log, metrics.New())
			return Play(cmd.Context(), svc.engine, userID, category, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to play as")
	cmd.Flags().StringVar(&category, "category", "", "category to play")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

// Play runs one session to completion on a line-oriented terminal. Closing the
// input exits the session; answers already given stay recorded.
func Play(ctx context.Context, engine *app.Engine, userID, category string, in io.Reader, out io.Writer) error {
	s, err := engine.Start(ctx, userID, category)
	if err != nil {
		return err
	}
	defer func() {
		s.Exit()
		s.Flush()
	}()

	snap := s.Snapshot()
	if snap.State == app.StateNoContent {
		fmt.Fprintf(out, "No new questions in %s.\n", category)
		return nil
	}

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "%s: %d questions. Press Enter to begin.\n", category, snap.Total)
	if _, err := reader.ReadString('\n'); err != nil {
		fmt.Fprintln(out, "Exiting.")
		return nil
	}

	if snap, err = s.Begin(); err != nil {
		return err
	}
	score := 0
	for snap.State == app.StateInProgress {
		printQuestion(out, snap)
		snap, err = readAnswer(reader, out, s)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nExiting.")
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case snap.TimedOut:
			fmt.Fprintf(out, "Time's up. Correct answer was %s\n", snap.CorrectAnswer)
		case snap.Correct != nil && *snap.Correct:
			fmt.Fprintln(out, "Correct!")
			score++
		default:
			fmt.Fprintf(out, "Wrong. Correct answer was %s\n", snap.CorrectAnswer)
		}
		if snap, err = s.Next(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nFinal score: %d/%d\n", score, snap.Total)
	return nil
}

func printQuestion(out io.Writer, snap app.SessionSnapshot) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Q%d/%d (%ds): %s\n\n", snap.Index+1, snap.Total, snap.SecondsLeft, snap.Question.Text)
	for _, label := range domain.OptionLabels {
		if text, ok := snap.Question.Options[label]; ok {
			fmt.Fprintf(out, "%s. %s\n", label, text)
		}
	}
	fmt.Fprintln(out)
}

// readAnswer reads lines until one names an option. A countdown that ran out while
// waiting is reported as the session's Feedback snapshot.
func readAnswer(reader *bufio.Reader, out io.Writer, s *app.Session) (app.SessionSnapshot, error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return s.Snapshot(), err
		}
		snap, answerErr := s.Answer(line)
		switch {
		case answerErr == nil:
			return snap, nil
		case errors.Is(answerErr, domain.ErrOptionNotFound):
			fmt.Fprintln(out, "Invalid input. Please enter one of the letters shown.")
		case errors.Is(answerErr, domain.ErrInvalidTransition) && snap.State == app.StateFeedback:
			return snap, nil
		default:
			return snap, answerErr
		}
		if err != nil {
			return s.Snapshot(), err
		}
	}
}
