// Command playground walks every memory strategy through a scripted
// conversation and renders the resulting statistics. With OPENAI_API_KEY set
// (directly or via .env) it uses the real model; otherwise it falls back to
// a deterministic offline stub so the strategies can be explored without
// credentials.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
	"github.com/smallnest/agentmem/memory"
	"github.com/smallnest/agentmem/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	contextStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// script is the conversation every strategy replays. It mixes small talk
// with promotable facts so the composites have something to promote.
var script = []string{
	"Hi, my name is Sam and I work on the billing service.",
	"Remember that I am allergic to peanuts.",
	"The deployment is scheduled for Friday at noon.",
	"Always use the staging cluster for load tests.",
	"What do you know about my allergies?",
}

func main() {
	strategyFlag := flag.String("strategy", "", "run a single strategy id (default: all)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLogLevel(log.LogLevelDebug)
	}

	// Missing .env is fine; the environment may already be configured.
	_ = godotenv.Load()

	client := buildClient()
	counter := func(text string) int { return len(strings.Fields(text)) }
	registry := session.NewRegistry(client, llm.DefaultGenerationModel)

	ids := memory.StrategyIDs()
	if *strategyFlag != "" {
		ids = []string{*strategyFlag}
	}

	for _, id := range ids {
		if err := runStrategy(registry, id, counter); err != nil {
			fmt.Fprintf(os.Stderr, "playground: %s: %v\n", id, err)
			os.Exit(1)
		}
	}
}

func buildClient() llm.Client {
	client, err := llm.NewOpenAIClientFromEnv()
	if err != nil {
		log.Warn("playground: %v; using offline stub client", err)
		return &stubClient{}
	}
	return client
}

func runStrategy(registry *session.Registry, id string, counter llm.TokenCounter) error {
	sess, err := registry.Create(session.CreateOptions{
		StrategyID:     id,
		StrategyConfig: &memory.Config{CountTokens: counter},
	})
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("== " + id + " =="))
	ctx := context.Background()

	var lastContext string
	for _, userInput := range script {
		result, err := sess.Agent.Chat(ctx, userInput)
		if err != nil {
			return err
		}
		lastContext = result.Context
		fmt.Printf("%s %s\n", labelStyle.Render("user >"), userInput)
		fmt.Printf("%s %s\n", labelStyle.Render("agent >"), valueStyle.Render(result.AIResponse))
	}

	fmt.Println(contextStyle.Render("final context:\n" + lastContext))
	renderStats(sess.Agent.Stats())
	fmt.Printf("%s %d entries\n", labelStyle.Render("operation log:"), len(sess.Agent.OperationLog()))
	return nil
}

func renderStats(stats memory.Stats) {
	fmt.Printf("%s %s (%s)\n",
		labelStyle.Render("strategy:"),
		valueStyle.Render(stats.StrategyType),
		stats.StrategyID)
	fmt.Printf("%s %s\n", labelStyle.Render("memory size:"), valueStyle.Render(stats.MemorySize))

	keys := make([]string, 0, len(stats.Metrics))
	for key := range stats.Metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %s %v\n", labelStyle.Render(key+":"), stats.Metrics[key])
	}
}

// stubClient is a deterministic offline stand-in for the real model. Text
// responses acknowledge the request; embeddings hash the text into a fixed
// vector so retrieval behaves consistently across runs.
type stubClient struct{}

func (s *stubClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) string {
	switch {
	case strings.Contains(userPrompt, "Rate the importance"):
		return "0.8"
	case strings.Contains(userPrompt, "ENTITIES:"):
		return "ENTITIES: none RELATIONSHIPS: none"
	case strings.Contains(userPrompt, "state the fact concisely"):
		if strings.Contains(strings.ToLower(userPrompt), "allergic") {
			return "Sam is allergic to peanuts."
		}
		return "No important fact."
	case strings.Contains(userPrompt, "Updated Summary:"), strings.Contains(userPrompt, "Compressed Summary:"):
		return "Sam works on billing, is allergic to peanuts, and deploys Friday."
	default:
		return "Understood."
	}
}

func (s *stubClient) GenerateEmbedding(ctx context.Context, text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[i*4 : i*4+4])
		vec[i] = float32(bits%1000) / 1000.0
	}
	return vec
}
