// Package main is an interactive console that plays the delivery channel
// against a local engine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/easeaico/storefront-cs/internal/agent"
	"github.com/easeaico/storefront-cs/internal/bootstrap"
	"github.com/easeaico/storefront-cs/internal/config"
	"github.com/easeaico/storefront-cs/internal/types"
)

const help = `commands:
  /session <id>   switch session
  /user <name>    switch customer name
  /status         show engine status
  /reload         reload prompt, media, rules and knowledge
  /prune          drop expired memory
  /quit           exit`

type console struct {
	engine    *agent.Engine
	sessionID string
	userName  string
	failMedia bool
	history   []types.ChatMessage
}

func main() {
	session := flag.String("session", "sim_session", "Session id")
	user := flag.String("user", "模拟客户", "Customer name")
	failMedia := flag.Bool("fail-media", false, "Report every media delivery as failed")
	verbose := flag.Bool("v", false, "Log engine debug output")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize engine: %v", err)
	}
	defer rt.Close()

	c := &console{engine: rt.Engine, sessionID: *session, userName: *user, failMedia: *failMedia}
	fmt.Println(help)
	c.run(ctx, os.Stdin)
	fmt.Println("\n正在关闭...")
}

func (c *console) run(ctx context.Context, in *os.File) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Printf("[%s/%s] > ", c.sessionID, c.userName)
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !c.handle(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

func (c *console) handle(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, "/") {
		return c.command(ctx, line)
	}

	d, err := c.engine.Decide(ctx, agent.Request{
		SessionID: c.sessionID,
		UserName:  c.userName,
		Text:      line,
		History:   c.history,
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return true
	}
	fmt.Printf("客服: %s\n", d.ReplyText)
	fmt.Printf("  rule=%s intent=%s source=%s goal=%s media=%s", d.RuleID, d.Intent, d.ReplySource, d.ReplyGoal, d.MediaPlan)
	if d.MediaSkipReason != "" {
		fmt.Printf(" skip=%s", d.MediaSkipReason)
	}
	if d.LLMFallbackReason != "" {
		fmt.Printf(" fallback=%s", d.LLMFallbackReason)
	}
	fmt.Println()

	for _, item := range d.MediaItems {
		c.deliver(ctx, item)
	}

	video, err := c.engine.MarkReplySent(ctx, c.sessionID, c.userName, d.ReplyText)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return true
	}
	if video != nil {
		c.deliver(ctx, *video)
	}

	c.history = append(c.history,
		types.ChatMessage{Role: types.RoleUser, Content: line},
		types.ChatMessage{Role: types.RoleAssistant, Content: d.ReplyText},
	)
	return true
}

func (c *console) deliver(ctx context.Context, item types.MediaItem) {
	success := !c.failMedia
	result, _ := json.Marshal(map[string]any{"simulated": true, "success": success})
	status := "sent"
	if !success {
		status = "FAILED"
	}
	fmt.Printf("  [%s %s] %s\n", item.Type, status, item.Path)
	if err := c.engine.MarkMediaSent(ctx, c.sessionID, c.userName, item, success, result); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (c *console) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return false
	case "/session":
		if arg != "" {
			c.sessionID = arg
			c.history = nil
		}
	case "/user":
		if arg != "" {
			c.userName = arg
		}
	case "/status":
		data, _ := json.MarshalIndent(c.engine.Status(), "", "  ")
		fmt.Println(string(data))
	case "/reload":
		loaded := c.engine.ReloadPromptDocs()
		for _, err := range []error{c.engine.ReloadMediaLibrary(), c.engine.ReloadRuleConfigs(), c.engine.ReloadKnowledge(ctx)} {
			if err != nil {
				fmt.Printf("reload error: %v\n", err)
			}
		}
		fmt.Printf("reloaded, prompt docs loaded=%v\n", loaded)
	case "/prune":
		sessions, users := c.engine.PruneExpired(ctx)
		fmt.Printf("pruned %d session(s), %d user(s)\n", sessions, users)
	default:
		fmt.Println(help)
	}
	return true
}
