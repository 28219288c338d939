// Test program that sends sample emails through one inference backend and
// prints the classification and extracted fields. API keys come from the
// usual environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/applytrail/internal/llm"
	"github.com/ppiankov/applytrail/internal/model"
)

var samples = []model.Item{
	{
		ID:      "sample-confirmation",
		Sender:  "Acme Careers <no-reply@greenhouse.io>",
		Subject: "Thank you for applying to Acme",
		Body: `Hi Sam,

Thank you for your interest in the Senior Backend Engineer position at Acme.
We have received your application and our team will review it shortly.

Best,
The Acme Recruiting Team`,
	},
	{
		ID:      "sample-rejection",
		Sender:  "Globex Talent <jobs@globex.example>",
		Subject: "Your application to Globex",
		Body: `Hi Sam,

Thank you for applying for the Data Engineer role. Unfortunately, we have
decided not to move forward with your application at this time.`,
	},
	{
		ID:      "sample-newsletter",
		Sender:  "Weekly Jobs <digest@jobs.example>",
		Subject: "10 new jobs matching your search",
		Body:    "Here are this week's top jobs for you. Apply now!",
	},
}

func main() {
	backend := flag.String("backend", model.BackendOpenAI, "inference backend (openai, anthropic, gemini, groq, ollama)")
	modelName := flag.String("model", "", "model override")
	subject := flag.String("subject", "", "classify a custom subject instead of the samples")
	body := flag.String("body", "", "body for -subject")
	timeout := flag.Duration("timeout", 30*time.Second, "per-call timeout")
	flag.Parse()

	cfg := model.DefaultConfig().LLM
	if *modelName != "" {
		cfg.Models[*backend] = *modelName
	}

	provider, err := llm.NewProvider(llm.ConfigFor(cfg, model.DefaultSettings(), *backend))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	client := llm.NewClient(provider, llm.ClientConfig{Timeout: *timeout, MaxTokens: cfg.MaxTokens})

	items := samples
	if *subject != "" {
		items = []model.Item{{ID: "custom", Subject: *subject, Body: *body}}
	}

	fmt.Printf("=== %s ===\n\n", client.Name())
	ctx := context.Background()

	for _, item := range items {
		fmt.Printf("%s: %s\n", item.ID, item.Subject)
		fmt.Println(strings.Repeat("-", 60))

		ok, err := client.Classify(ctx, item)
		if err != nil {
			fmt.Printf("  ✗ classify: %v\n\n", err)
			continue
		}
		if !ok {
			fmt.Print("  not a confirmation\n\n")
			continue
		}

		ext, err := client.Extract(ctx, item)
		switch {
		case errors.Is(err, model.ErrExtractionIncomplete):
			fmt.Print("  ✓ confirmation, but no company or position found\n\n")
		case err != nil:
			fmt.Printf("  ✓ confirmation\n  ✗ extract: %v\n\n", err)
		default:
			fmt.Printf("  ✓ confirmation\n    company:  %s\n    position: %s\n\n", ext.Company, ext.Position)
		}
	}
}
