package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ldi/tend/internal/db"
	"github.com/ldi/tend/internal/graph"
	"github.com/ldi/tend/internal/recur"
	"github.com/ldi/tend/pkg/models"
)

// NewServer creates a new MCP server exposing the task manager as tools.
func NewServer(database *db.DB) *server.MCPServer {
	s := server.NewMCPServer("Tend", "0.1.0")

	// Task Management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task. Defaults to the inbox unless a status or project is given."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("status", mcp.Description("Status (inbox|next|waiting|someday)")),
		mcp.WithString("project_id", mcp.Description("Project to file the task under")),
		mcp.WithString("due_date", mcp.Description("Due date (YYYY-MM-DD)")),
		mcp.WithString("defer_date", mcp.Description("Defer date (YYYY-MM-DD)")),
		mcp.WithString("energy", mcp.Description("Energy level (high|medium|low)")),
		mcp.WithNumber("time_estimate", mcp.Description("Estimated minutes")),
		mcp.WithString("contexts", mcp.Description("Comma-separated context tags")),
		mcp.WithString("recurrence", mcp.Description("Recurrence: a bare interval tag (daily|weekly|biweekly|monthly|yearly) or a structured JSON object")),
		mcp.WithString("recurrence_end_date", mcp.Description("Last date recurrence may produce an occurrence (YYYY-MM-DD)")),
	), createTaskHandler(database))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update an existing task's fields."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("project_id", mcp.Description("New project ID (empty detaches)")),
		mcp.WithString("due_date", mcp.Description("New due date (YYYY-MM-DD, empty clears)")),
		mcp.WithString("defer_date", mcp.Description("New defer date (YYYY-MM-DD, empty clears)")),
		mcp.WithString("energy", mcp.Description("New energy level")),
		mcp.WithNumber("time_estimate", mcp.Description("New estimated minutes")),
		mcp.WithNumber("time_spent", mcp.Description("New accumulated minutes")),
		mcp.WithString("recurrence", mcp.Description("New recurrence (tag or JSON object, empty clears)")),
		mcp.WithString("recurrence_end_date", mcp.Description("New recurrence end date")),
		mcp.WithBoolean("starred", mcp.Description("Star or unstar the task")),
	), updateTaskHandler(database))

	s.AddTool(mcp.NewTool("set_task_status",
		mcp.WithDescription("Move a task between GTD statuses (inbox|next|waiting|someday|completed)."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status"), mcp.Required()),
	), setTaskStatusHandler(database))

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Complete a task. A recurring task spawns and reports its next instance."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), completeTaskHandler(database))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(database))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		mcp.WithString("status", mcp.Description("Filter by status")),
		mcp.WithString("project_id", mcp.Description("Filter by project")),
		mcp.WithString("context", mcp.Description("Filter by context tag")),
	), listTasksHandler(database))

	s.AddTool(mcp.NewTool("get_ready_tasks",
		mcp.WithDescription("Get incomplete tasks whose dependencies are all completed."),
	), getReadyTasksHandler(database))

	// Dependency Management
	s.AddTool(mcp.NewTool("add_dependency",
		mcp.WithDescription("Record that a task waits for another task."),
		mcp.WithString("task_id", mcp.Description("The waiting task"), mcp.Required()),
		mcp.WithString("waits_for_task_id", mcp.Description("The task that must complete first"), mcp.Required()),
	), addDependencyHandler(database))

	s.AddTool(mcp.NewTool("remove_dependency",
		mcp.WithDescription("Remove a dependency edge."),
		mcp.WithString("task_id", mcp.Description("The waiting task"), mcp.Required()),
		mcp.WithString("waits_for_task_id", mcp.Description("The dependency to drop"), mcp.Required()),
	), removeDependencyHandler(database))

	s.AddTool(mcp.NewTool("get_pending_dependencies",
		mcp.WithDescription("Get the incomplete tasks still blocking a task."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getPendingDependenciesHandler(database))

	// Graph Queries
	s.AddTool(mcp.NewTool("get_dependency_stats",
		mcp.WithDescription("Get dependency statistics (total, with deps, blocked, ready)."),
		mcp.WithString("project_id", mcp.Description("Limit to one project")),
	), getDependencyStatsHandler(database))

	s.AddTool(mcp.NewTool("get_critical_path",
		mcp.WithDescription("Get the longest chain of sequentially dependent tasks."),
	), getCriticalPathHandler(database))

	s.AddTool(mcp.NewTool("get_dependency_chains",
		mcp.WithDescription("Get all dependency chains, longest first."),
	), getDependencyChainsHandler(database))

	s.AddTool(mcp.NewTool("get_next_occurrence",
		mcp.WithDescription("Get the date a recurring task will next occur."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getNextOccurrenceHandler(database))

	// Projects & References
	s.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a project."),
		mcp.WithString("title", mcp.Description("Project title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Project description")),
	), createProjectHandler(database))

	s.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects."),
	), listProjectsHandler(database))

	s.AddTool(mcp.NewTool("create_reference",
		mcp.WithDescription("File non-actionable reference material."),
		mcp.WithString("title", mcp.Description("Reference title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Reference body")),
	), createReferenceHandler(database))

	s.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List all references."),
	), listReferencesHandler(database))

	// Templates & Snapshots
	s.AddTool(mcp.NewTool("instantiate_template",
		mcp.WithDescription("Create a new inbox task from a named template."),
		mcp.WithString("name", mcp.Description("Template name"), mcp.Required()),
	), instantiateTemplateHandler(database))

	s.AddTool(mcp.NewTool("export_snapshot",
		mcp.WithDescription("Export the full dataset as a JSONL snapshot."),
		mcp.WithString("path", mcp.Description("Destination file path"), mcp.Required()),
	), exportSnapshotHandler(database))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// parseRecurrence accepts either a bare interval tag or a structured JSON
// object, mirroring the two wire shapes the model normalizes.
func parseRecurrence(s string) (models.Recurrence, error) {
	var rec models.Recurrence
	if s == "" {
		return rec, nil
	}
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return rec, fmt.Errorf("invalid recurrence object: %w", err)
		}
		return rec, nil
	}
	return models.Recurrence{Type: models.RecurrenceType(s)}, nil
}

func splitContexts(s string) []string {
	if s == "" {
		return nil
	}
	var contexts []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			contexts = append(contexts, c)
		}
	}
	return contexts
}

func createTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec, err := parseRecurrence(mcp.ParseString(request, "recurrence", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		t := &models.Task{
			Title:             mcp.ParseString(request, "title", ""),
			Description:       mcp.ParseString(request, "description", ""),
			Status:            models.TaskStatus(mcp.ParseString(request, "status", "")),
			ProjectID:         mcp.ParseString(request, "project_id", ""),
			DueDate:           mcp.ParseString(request, "due_date", ""),
			DeferDate:         mcp.ParseString(request, "defer_date", ""),
			Energy:            models.Energy(mcp.ParseString(request, "energy", "")),
			TimeEstimate:      mcp.ParseInt(request, "time_estimate", 0),
			Contexts:          splitContexts(mcp.ParseString(request, "contexts", "")),
			Recurrence:        rec,
			RecurrenceEndDate: mcp.ParseString(request, "recurrence_end_date", ""),
		}

		if err := database.CreateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task '%s' created with ID %s (status: %s)", t.Title, t.ID, t.Status)), nil
	}
}

func updateTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := database.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with ID '%s' not found", id)), nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			t.Title = title
		}
		if description, ok := args["description"].(string); ok {
			t.Description = description
		}
		if projectID, ok := args["project_id"].(string); ok {
			t.ProjectID = projectID
		}
		if dueDate, ok := args["due_date"].(string); ok {
			t.DueDate = dueDate
		}
		if deferDate, ok := args["defer_date"].(string); ok {
			t.DeferDate = deferDate
		}
		if energy, ok := args["energy"].(string); ok {
			t.Energy = models.Energy(energy)
		}
		if estimate, ok := args["time_estimate"].(float64); ok {
			t.TimeEstimate = int(estimate)
		}
		if spent, ok := args["time_spent"].(float64); ok {
			t.TimeSpent = int(spent)
		}
		if recurrence, ok := args["recurrence"].(string); ok {
			rec, err := parseRecurrence(recurrence)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			t.Recurrence = rec
		}
		if endDate, ok := args["recurrence_end_date"].(string); ok {
			t.RecurrenceEndDate = endDate
		}
		if starred, ok := args["starred"].(bool); ok {
			t.Starred = starred
		}

		if err := database.UpdateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task updated successfully"), nil
	}
}

func setTaskStatusHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		status := mcp.ParseString(request, "status", "")

		if err := database.SetTaskStatus(ctx, id, models.TaskStatus(status)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task status updated successfully"), nil
	}
}

func completeTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		next, err := database.CompleteTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if next != nil {
			return mcp.NewToolResultText(fmt.Sprintf("Task completed. Next occurrence created with ID %s, due %s.", next.ID, next.DueDate)), nil
		}
		return mcp.NewToolResultText("Task completed."), nil
	}
}

func deleteTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		if err := database.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func listTasksHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var filter db.TaskFilter
		args, _ := request.Params.Arguments.(map[string]any)
		if s, ok := args["status"].(string); ok && s != "" {
			status := models.TaskStatus(s)
			filter.Status = &status
		}
		if p, ok := args["project_id"].(string); ok && p != "" {
			filter.ProjectID = &p
		}
		if c, ok := args["context"].(string); ok && c != "" {
			filter.Context = &c
		}

		tasks, err := database.ListTasks(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"tasks": tasks})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getReadyTasksHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := database.ReadyTasks(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"tasks": tasks})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func addDependencyHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		waitsFor := mcp.ParseString(request, "waits_for_task_id", "")

		if err := database.AddDependency(ctx, taskID, waitsFor); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Dependency added successfully"), nil
	}
}

func removeDependencyHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		waitsFor := mcp.ParseString(request, "waits_for_task_id", "")

		if err := database.RemoveDependency(ctx, taskID, waitsFor); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Dependency removed successfully"), nil
	}
}

func getPendingDependenciesHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		tasks, err := database.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		g := graph.New(tasks)
		var target *models.Task
		for _, t := range tasks {
			if t.ID == id {
				target = t
				break
			}
		}
		if target == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with ID '%s' not found", id)), nil
		}

		data, err := json.Marshal(map[string]any{
			"met":     g.DependenciesMet(target),
			"pending": g.PendingDependencies(target),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getDependencyStatsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID := mcp.ParseString(request, "project_id", "")

		tasks, err := database.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		stats := graph.New(tasks).StatsFor(projectID)
		data, err := json.Marshal(stats)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getCriticalPathHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := database.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"critical_path": graph.New(tasks).CriticalPath()})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getDependencyChainsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := database.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"chains": graph.New(tasks).Chains()})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getNextOccurrenceHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := database.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task with ID '%s' not found", id)), nil
		}

		next := recur.NextInstance(t, time.Now().UTC())
		if next == nil {
			return mcp.NewToolResultText("Task is not recurring or its recurrence has ended."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Next occurrence: %s", next.DueDate)), nil
	}
}

func createProjectHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := &models.Project{
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
		}

		if err := database.CreateProject(ctx, p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Project '%s' created with ID %s", p.Title, p.ID)), nil
	}
}

func listProjectsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := database.ListProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"projects": projects})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func createReferenceHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r := &models.Reference{
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
		}

		if err := database.CreateReference(ctx, r); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Reference '%s' created with ID %s", r.Title, r.ID)), nil
	}
}

func listReferencesHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		refs, err := database.ListReferences(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]any{"references": refs})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func instantiateTemplateHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := mcp.ParseString(request, "name", "")

		t, err := database.InstantiateTemplate(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task '%s' created from template '%s' with ID %s", t.Title, name, t.ID)), nil
	}
}

func exportSnapshotHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := mcp.ParseString(request, "path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}

		if err := database.ExportSnapshot(ctx, path); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Snapshot exported to %s", path)), nil
	}
}
