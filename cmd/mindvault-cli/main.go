package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/pkg/client"
	"github.com/xhad/mindvault/pkg/content"
)

type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
}

func main() {
	_ = godotenv.Load()
	config := parseFlags()

	if config.Token == "" {
		log.Fatal("a session token is required (-token or MINDVAULT_TOKEN)")
	}
	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config

	serverURL := os.Getenv("MINDVAULT_URL")
	if serverURL == "" {
		serverURL = "http://localhost:3000"
	}

	flag.StringVar(&config.ServerURL, "server", serverURL, "Mind Vault server URL")
	flag.StringVar(&config.Token, "token", os.Getenv("MINDVAULT_TOKEN"), "Session token")
	flag.DurationVar(&config.Timeout, "timeout", 90*time.Second, "Request timeout")
	flag.Parse()

	return config
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// withSpinner runs fn while a spinner ticks on the terminal.
func withSpinner(description string, fn func()) {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = spinner.Add(1)
			}
		}
	}()

	fn()
	close(done)
	_ = spinner.Finish()
	fmt.Print("\r")
}

func run(config Config) error {
	api := client.New(config.ServerURL, config.Token, config.Timeout)
	ctx := context.Background()

	color.Cyan("\nAsk your Mind Vault (type 'exit' to quit, '/help' for commands)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.ToLower(line) == "exit" {
			break
		}

		if strings.HasPrefix(line, "/") {
			runCommand(ctx, api, line)
			continue
		}

		var (
			answer client.Answer
			err    error
		)
		withSpinner(" Searching your vault...", func() {
			answer, err = api.Ask(ctx, line)
		})
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("\nAssistant: %s\n", answer.Result)
		if len(answer.Content) > 0 {
			color.Blue("\nFrom your vault:")
			printItems(answer.Content)
		}
	}

	return scanner.Err()
}

func runCommand(ctx context.Context, api *client.Client, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Println("  /add <type> <link or title> [#tag ...]  save content")
		fmt.Println("  /list [type]                            list saved content")
		fmt.Println("  /delete <id>                            delete content")
		fmt.Println("  anything else                           ask a question")

	case "/add":
		req, err := parseAdd(fields[1:])
		if err != nil {
			color.Red("%v\n", err)
			return
		}
		var item models.ContentItem
		withSpinner(" Saving...", func() {
			item, err = api.AddContent(ctx, req)
		})
		if err != nil {
			color.Red("Error: %v\n", err)
			return
		}
		color.Green("✓ Saved %q (%s)\n", item.Title, item.ID)

	case "/list":
		kind := ""
		if len(fields) > 1 {
			kind = fields[1]
		}
		items, err := api.ListContent(ctx, kind)
		if err != nil {
			color.Red("Error: %v\n", err)
			return
		}
		if len(items) == 0 {
			color.Yellow("Your vault is empty.\n")
			return
		}
		printItems(items)

	case "/delete":
		if len(fields) != 2 {
			color.Red("usage: /delete <id>\n")
			return
		}
		if err := api.DeleteContent(ctx, fields[1]); err != nil {
			color.Red("Error: %v\n", err)
			return
		}
		color.Green("✓ Deleted %s\n", fields[1])

	default:
		color.Red("unknown command %s, try /help\n", fields[0])
	}
}

// parseAdd reads "<type> <link or title words> [#tag ...]". A first word
// starting with http is taken as the link; the title is then fetched by the
// server.
func parseAdd(args []string) (content.CreateRequest, error) {
	if len(args) < 2 {
		return content.CreateRequest{}, fmt.Errorf("usage: /add <type> <link or title> [#tag ...]")
	}

	req := content.CreateRequest{Kind: args[0], Tags: []string{}}
	var title []string
	for _, a := range args[1:] {
		switch {
		case strings.HasPrefix(a, "#") && len(a) > 1:
			req.Tags = append(req.Tags, a[1:])
		case req.Link == "" && len(title) == 0 && strings.HasPrefix(a, "http"):
			req.Link = a
		default:
			title = append(title, a)
		}
	}
	req.Title = strings.Join(title, " ")
	return req, nil
}

func printItems(items []models.ContentItem) {
	for _, item := range items {
		line := fmt.Sprintf("  • [%s] %s", item.Kind, item.Title)
		if names := item.TagNames(); len(names) > 0 {
			line += color.MagentaString("  #%s", strings.Join(names, " #"))
		}
		fmt.Println(line)
		if item.SourceLink != "" {
			fmt.Println("    " + color.HiBlackString(item.SourceLink))
		}
	}
}
