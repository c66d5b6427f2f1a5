package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/conversion"
)

// printJSON writes v as indented JSON. raw is preferred when set so fields
// the client does not model are kept.
func printJSON(w io.Writer, raw json.RawMessage, v any) error {
	out, err := conversion.IndentJSON(raw, v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// printYAML writes v as YAML.
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printAgents writes one block per agent.
func printAgents(w io.Writer, agents []client.AgentDescriptor) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found")
		return
	}
	for _, a := range agents {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		fmt.Fprintf(w, "  • %s (%s) [%s]", name, a.Role, a.ID)
		if a.MemoryEntries > 0 {
			fmt.Fprintf(w, " - %d memories", a.MemoryEntries)
		}
		fmt.Fprintln(w)
		if len(a.Expertise) > 0 {
			fmt.Fprintf(w, "    Expertise: %s\n", strings.Join(a.Expertise, ", "))
		}
	}
}

// printReply writes an agent reply in the requested format. Text replies get
// a header naming the agent.
func printReply(w io.Writer, reply *client.AgentReply, format conversion.Format) error {
	out, err := conversion.NewConverter().Render(reply, format)
	if err != nil {
		return err
	}
	if format == conversion.FormatText {
		fmt.Fprintf(w, "🤖 %s:\n", replyAuthor(reply))
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func replyAuthor(reply *client.AgentReply) string {
	name := reply.Agent
	if name == "" {
		name = reply.AgentID
	}
	if name == "" {
		name = "Team Coordinator"
	}
	if reply.Role != "" {
		return name + " (" + reply.Role + ")"
	}
	return name
}
