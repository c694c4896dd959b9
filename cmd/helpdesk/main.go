package main

import (
	"fmt"
	"os"
	"strings"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultUser = "user123"

func main() {
	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "help", "--help", "-h":
		showUsage()
		return
	case "version", "--version":
		fmt.Printf("helpdesk %s\n", version)
		return
	case "chat":
		err = runChat(args)
	case "ask":
		err = runAsk(args)
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "seed":
		err = runSeed(args)
	case "jira-check":
		err = runJiraCheck(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'helpdesk --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// splitCommand returns the subcommand and its remaining arguments. With no
// subcommand, or when the first argument is a flag, the command is chat.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help" && args[0] != "--version" {
		return "chat", args
	}
	return args[0], args[1:]
}

func showUsage() {
	fmt.Println(`helpdesk - AI IT help desk

USAGE:
    helpdesk [COMMAND] [FLAGS]

COMMANDS:
    chat          Interactive terminal chat (default)
    ask MESSAGE   Answer one request and exit
    serve         Run the HTTP/WebSocket API and scheduled maintenance
    mcp           Serve the IT tools over MCP on stdio
    seed          Build the SQLite knowledge index
    jira-check    Verify Jira credentials and list projects
    version       Print the version

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file (default: ./config.yaml, or $HELPDESK_CONFIG)
    --user ID        Requesting user (default: user123)

CONFIGURATION:
    Environment: HELPDESK_* variables override config
    Session encryption passphrase: HELPDESK_SESSION_KEY

EXAMPLES:
    helpdesk                                   # Chat as user123
    helpdesk --user user_ceo                   # Chat as a VIP user
    helpdesk ask "my vpn keeps dropping"       # One-shot answer
    helpdesk serve --config /etc/helpdesk.yaml # API server`)
}

// flags holds the options shared by every command.
type flags struct {
	ConfigPath string
	UserID     string
	Rest       []string // positional arguments
}

// parseFlags extracts --config and --user from args.
func parseFlags(args []string) flags {
	f := flags{ConfigPath: os.Getenv("HELPDESK_CONFIG"), UserID: defaultUser}
	if f.ConfigPath == "" {
		f.ConfigPath = "config.yaml"
	}
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			f.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			f.ConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--user" && i+1 < len(args):
			f.UserID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--user="):
			f.UserID = strings.TrimPrefix(args[i], "--user=")
		default:
			f.Rest = append(f.Rest, args[i])
		}
	}
	return f
}
