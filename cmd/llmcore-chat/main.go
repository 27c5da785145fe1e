// Command llmcore-chat is a minimal interactive demo of pkg/chatworker,
// adapted from the teacher's examples/cli-chat. Where the teacher's demo
// opens an OpenAI language model over HTTP, this one runs entirely
// in-process against pkg/kernel/refkernel, so the demo has no network
// dependency and no API key to configure.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/localrt/llmcore/pkg/chatworker"
	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/localrt/llmcore/pkg/sampler"
)

func main() {
	k := refkernel.New().WithResponder(echoResponder())

	w, err := chatworker.New(
		k, k.Handle(),
		"You are a terse demo assistant.",
		nil,
		sampler.Config{Finalizer: sampler.Greedy{}},
		0, false,
	)
	if err != nil {
		log.Fatalf("chatworker.New: %v", err)
	}
	defer w.Close()

	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	fmt.Println("llmcore-chat — interactive demo over pkg/kernel/refkernel")
	fmt.Println("Commands: /exit  /clear  /help")

	for {
		fmt.Print("\nyou> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("read input: %v", err)
			continue
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			if handleCommand(line, w) {
				return
			}
			continue
		}
		if line == "" {
			continue
		}

		events, err := w.Ask(ctx, line)
		if err != nil {
			log.Printf("ask: %v", err)
			continue
		}

		fmt.Print("assistant> ")
		for ev := range events {
			switch ev.Kind {
			case chatworker.EventToken:
				fmt.Print(ev.Text)
			case chatworker.EventToolCallStarted:
				fmt.Printf("\n[calling %s]\n", ev.ToolName)
			case chatworker.EventToolCallFinished:
				fmt.Printf("[%s -> %s]\n", ev.ToolName, ev.ToolResult)
			case chatworker.EventError:
				fmt.Printf("\nerror: %v\n", ev.Err)
			}
		}
		fmt.Println()
	}
}

func handleCommand(cmd string, w *chatworker.Worker) (exit bool) {
	switch cmd {
	case "/exit":
		fmt.Println("goodbye")
		return true
	case "/clear":
		w.ResetHistory()
		fmt.Println("history cleared")
	case "/help":
		fmt.Println("/exit  /clear  /help")
	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
	return false
}

// echoResponder turns the reference kernel into a toy assistant: it reads
// back the most recent "<|user|>" segment of the rendered history and
// answers with one whitespace-delimited word of it per step. The reference
// kernel's DecodeNext keeps only the first vocabulary token of each answer
// and adds no space, so the reply streams the first token of each user
// word, run together. A human
// running the demo sees the worker's streaming, stop and history plumbing
// exercised without any real model weights behind it.
func echoResponder() refkernel.Responder {
	var words []string
	i := 0
	seenFor := ""
	return func(history string) (string, bool) {
		const marker = "<|user|>\n"
		idx := strings.LastIndex(history, marker)
		if idx < 0 {
			return "", true
		}
		turn := history[idx+len(marker):]
		if end := strings.IndexByte(turn, '\n'); end >= 0 {
			turn = turn[:end]
		}
		if turn != seenFor {
			seenFor = turn
			words = strings.Fields(turn)
			i = 0
		}
		if i >= len(words) {
			return "", true
		}
		w := words[i]
		i++
		return w, false
	}
}
