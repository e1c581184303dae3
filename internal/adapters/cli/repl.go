package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/core/usecase"
)

const (
	exitCommand   = "exit"
	answerHeader  = "--- Assistant's Answer ---"
	answerFooter  = "-------------------------"
	maxInputBytes = 1 << 20
)

// RunREPL reads one request per line until EOF or "exit". A failed request
// is reported and the loop continues.
func RunREPL(ctx context.Context, in io.Reader, out io.Writer, generator ports.TestGenerator) error {
	fmt.Fprintln(out, "--- Code-Aware Test Assistant is Ready ---")
	fmt.Fprintln(out, "Enter your question or request. Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputBytes)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, exitCommand) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		answer(ctx, out, generator, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func answer(ctx context.Context, out io.Writer, generator ports.TestGenerator, request string) {
	fmt.Fprintln(out, "Thinking...")
	fmt.Fprintln(out, "  -> Generating a retrieval plan...")
	result, err := generator.Generate(usecase.WithProgress(ctx, consoleProgress{out: out}), request)
	if err != nil {
		slog.Error("request_failed", "error", err)
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	printResult(out, result)
}

func printResult(out io.Writer, result *domain.GenerationResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, answerHeader)
	if result.Outcome == domain.OutcomeNoContext {
		fmt.Fprintln(out, domain.NoContextMessage)
	} else {
		fmt.Fprintln(out, result.Code)
	}
	fmt.Fprintln(out, answerFooter)
}

type consoleProgress struct {
	out io.Writer
}

func (p consoleProgress) Planned(plan domain.RetrievalPlan) {
	encoded, err := json.Marshal(plan.SubQueries)
	if err != nil {
		encoded = []byte(strings.Join(plan.SubQueries, ", "))
	}
	fmt.Fprintf(p.out, "  -> Generated Plan: %s\n", encoded)
	fmt.Fprintln(p.out, "  -> Executing retrieval plan...")
}

func (p consoleProgress) Retrieving(subQuery string, k int) {
	fmt.Fprintf(p.out, "    -> Retrieving for sub-query: '%s' (k=%d)\n", subQuery, k)
}

func (p consoleProgress) Collected(documents int) {
	fmt.Fprintf(p.out, "\nCollected %d unique, relevant document(s).\n", documents)
}
