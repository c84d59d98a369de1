package mcp

import (
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	// watchtower_register — announce an agent run before starting work.
	s.mcpServer.AddTool(
		mcplib.NewTool("watchtower_register",
			mcplib.WithDescription(`Register yourself with the run registry before starting work.

Call this ONCE at the start of a task with a globally unique agent_id
(duplicate IDs silently overwrite the prior record). After registering,
report progress with watchtower_update_status and finish with
watchtower_complete so the dashboard never shows you as stuck.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id",
				mcplib.Description("Globally unique identifier for this agent run"),
				mcplib.Required(),
			),
			mcplib.WithString("agent_type",
				mcplib.Description("Kind of agent process (defaults to cursor-agent)"),
			),
			mcplib.WithString("workflow",
				mcplib.Description("Name of the workflow this run belongs to"),
			),
			mcplib.WithString("project",
				mcplib.Description("Project the workflow operates on"),
			),
			mcplib.WithString("metadata",
				mcplib.Description("Optional JSON object with caller-defined context"),
			),
		),
		s.handleRegister,
	)

	// watchtower_update_status — heartbeat plus current activity.
	s.mcpServer.AddTool(
		mcplib.NewTool("watchtower_update_status",
			mcplib.WithDescription(`Report what you are doing right now. Doubles as a heartbeat.

Call this whenever your activity changes, and at least every few minutes
during long operations. The registry's last_heartbeat field is how
operators tell a working agent from a dead one.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id",
				mcplib.Description("Your agent identifier"),
				mcplib.Required(),
			),
			mcplib.WithString("status",
				mcplib.Description("Lifecycle label (defaults to running)"),
			),
			mcplib.WithString("current_task",
				mcplib.Description("Free-text description of the current activity"),
			),
			mcplib.WithString("progress",
				mcplib.Description("Optional JSON object with structured progress data"),
			),
		),
		s.handleUpdateStatus,
	)

	// watchtower_complete — report terminal status and leave the active set.
	s.mcpServer.AddTool(
		mcplib.NewTool("watchtower_complete",
			mcplib.WithDescription(`Report that your run has finished, successfully or not.

Call this exactly once at the end of a task. Pass status "failed" or
"error" with an error message when things went wrong; the registry
records whatever terminal label you choose and removes you from the
active set either way.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id",
				mcplib.Description("Your agent identifier"),
				mcplib.Required(),
			),
			mcplib.WithString("status",
				mcplib.Description("Terminal label: completed, failed, error, ... (defaults to completed)"),
			),
			mcplib.WithString("result_summary",
				mcplib.Description("Short summary of what was produced"),
			),
			mcplib.WithString("error",
				mcplib.Description("Error message when the run did not succeed"),
			),
		),
		s.handleComplete,
	)

	// watchtower_get_agent — point lookup.
	s.mcpServer.AddTool(
		mcplib.NewTool("watchtower_get_agent",
			mcplib.WithDescription("Look up the latest recorded state of one agent run by its agent_id."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id",
				mcplib.Description("Agent identifier to look up"),
				mcplib.Required(),
			),
		),
		s.handleGetAgent,
	)

	// watchtower_list_active — live dashboard view.
	s.mcpServer.AddTool(
		mcplib.NewTool("watchtower_list_active",
			mcplib.WithDescription("List every agent currently registered as non-terminal, with its latest status and task."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListActive,
	)
}
