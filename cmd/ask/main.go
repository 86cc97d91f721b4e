// Command ask answers one question from the terminal, streaming the answer
// as it is generated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"compliance-rag-assistant/internal/app"
	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/pipeline"
	"compliance-rag-assistant/internal/prompt"
	"compliance-rag-assistant/models"
)

func main() {
	examples := flag.Bool("examples", false, "print example questions and exit")
	showSources := flag.Bool("sources", true, "print the retrieved sources after the answer")
	flag.Parse()

	if *examples {
		for _, q := range prompt.ExampleQuestions {
			fmt.Println(q)
		}
		return
	}

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [-sources=false] <question>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	logger.InitLoggerTo(os.Stderr, cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize: ", err)
	}
	defer a.Close()

	var last pipeline.State
	printed := 0
	for s := range a.Pipeline.AskStream(ctx, question) {
		last = s
		if answer := s.Answer(); len(answer) > printed {
			fmt.Print(answer[printed:])
			printed = len(answer)
		}
	}
	fmt.Println()

	if err := last.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if d, ok := models.RetryAfter(err); ok && d > 0 {
			fmt.Fprintf(os.Stderr, "retry after %s\n", d)
		}
		a.Close()
		os.Exit(1)
	}

	if refs := a.Pipeline.Assembler().Table().Mentioned(last.Answer()); len(refs) > 0 {
		fmt.Println("\nReferences:")
		for _, r := range refs {
			fmt.Printf("  - %s: %s\n", r.Title, r.URL)
		}
	}
	if *showSources {
		fmt.Println("\nSources:")
		for i, src := range last.Sources() {
			fmt.Printf("  %d. %s (score %.3f)\n", i+1, src.Metadata[models.MetaSource], src.Score)
		}
	}
}
