package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/client"
)

var (
	app = kingpin.New("agentguild", "Command line client for the agentguild server")

	serverURL = app.Flag("server", "Server base URL").Envar("AGENTGUILD_SERVER_URL").Default("http://localhost:3100").String()
	apiKey    = app.Flag("api-key", "API key").Envar("AGENTGUILD_API_KEY").String()
	jsonOut   = app.Flag("json", "Print JSON instead of tables").Bool()

	// Project commands
	projectCmd        = app.Command("project", "Project management commands")
	projectListCmd    = projectCmd.Command("list", "List projects")
	projectCreateCmd  = projectCmd.Command("create", "Create a project")
	projectCreateName = projectCreateCmd.Arg("name", "Project name").Required().String()
	projectCreateDesc = projectCreateCmd.Flag("description", "Description").String()
	projectDeleteCmd  = projectCmd.Command("delete", "Delete a project and its stopped agents")
	projectDeleteID   = projectDeleteCmd.Arg("id", "Project ID").Required().String()

	// Agent commands
	agentCmd            = app.Command("agent", "Agent management commands")
	agentListCmd        = agentCmd.Command("list", "List agents")
	agentListProject    = agentListCmd.Flag("project", "Filter by project ID").String()
	agentGetCmd         = agentCmd.Command("get", "Show an agent")
	agentGetID          = agentGetCmd.Arg("id", "Agent ID").Required().String()
	agentCreateCmd      = agentCmd.Command("create", "Create an agent")
	agentCreateProject  = agentCreateCmd.Flag("project", "Project ID").Required().String()
	agentCreateName     = agentCreateCmd.Flag("name", "Agent name").Required().String()
	agentCreateDesc     = agentCreateCmd.Flag("description", "Description").String()
	agentCreateProvider = agentCreateCmd.Flag("provider", "Inference provider").Default("anthropic").String()
	agentCreateModel    = agentCreateCmd.Flag("model", "Model").Required().String()
	agentCreatePrompt   = agentCreateCmd.Flag("system-prompt", "System prompt").String()
	agentCreateFeatures = agentCreateCmd.Flag("feature", "Enabled feature, repeatable").Strings()
	agentCreateMode     = agentCreateCmd.Flag("multi-agent", "Multi-agent role").Enum("coordinator", "worker")
	agentCreateGroup    = agentCreateCmd.Flag("group", "Multi-agent group").String()
	agentUpdateCmd      = agentCmd.Command("update", "Update an agent, restarting it when needed")
	agentUpdateID       = agentUpdateCmd.Arg("id", "Agent ID").Required().String()
	agentUpdateModel    = agentUpdateCmd.Flag("model", "Model").String()
	agentUpdatePrompt   = agentUpdateCmd.Flag("system-prompt", "System prompt").String()
	agentUpdateDesc     = agentUpdateCmd.Flag("description", "Description").String()
	agentDeleteCmd      = agentCmd.Command("delete", "Delete an agent and its tasks")
	agentDeleteID       = agentDeleteCmd.Arg("id", "Agent ID").Required().String()
	agentHealthCmd      = agentCmd.Command("health", "Probe a running agent")
	agentHealthID       = agentHealthCmd.Arg("id", "Agent ID").Required().String()
	agentControls       = map[string]agentControl{}

	// Task commands
	taskCmd            = app.Command("task", "Task management commands")
	taskListCmd        = taskCmd.Command("list", "List tasks")
	taskListAgent      = taskListCmd.Flag("agent", "Filter by agent ID").String()
	taskListStatus     = taskListCmd.Flag("status", "Filter by status").String()
	taskGetCmd         = taskCmd.Command("get", "Show a task")
	taskGetID          = taskGetCmd.Arg("id", "Task ID").Required().String()
	taskCreateCmd      = taskCmd.Command("create", "Create a task")
	taskCreateAgent    = taskCreateCmd.Arg("agent", "Agent ID").Required().String()
	taskCreateTitle    = taskCreateCmd.Arg("title", "Task title").Required().String()
	taskCreatePrompt   = taskCreateCmd.Arg("prompt", "Prompt").Required().String()
	taskCreateType     = taskCreateCmd.Flag("type", "Task type").Default("once").Enum("once", "recurring")
	taskCreateAt       = taskCreateCmd.Flag("at", "Execution time (RFC 3339) for once tasks").String()
	taskCreateCron     = taskCreateCmd.Flag("cron", "Five field cron expression for recurring tasks").String()
	taskCreatePriority = taskCreateCmd.Flag("priority", "Priority, higher runs first").Int32()
	taskRunCmd         = taskCmd.Command("run", "Execute a task now")
	taskRunID          = taskRunCmd.Arg("id", "Task ID").Required().String()
	taskCancelCmd      = taskCmd.Command("cancel", "Cancel a task")
	taskCancelID       = taskCancelCmd.Arg("id", "Task ID").Required().String()
	taskDeleteCmd      = taskCmd.Command("delete", "Delete a task")
	taskDeleteID       = taskDeleteCmd.Arg("id", "Task ID").Required().String()
	taskTrajectoryCmd  = taskCmd.Command("trajectory", "Show the steps of a run")
	taskTrajectoryID   = taskTrajectoryCmd.Arg("id", "Task ID").Required().String()
	taskTrajectoryRun  = taskTrajectoryCmd.Flag("run", "Run ID, latest when empty").String()

	// Delegation commands
	delegateCmd        = app.Command("delegate", "Delegate a task from a coordinator to a worker")
	delegateFrom       = delegateCmd.Arg("from", "Coordinator agent ID").Required().String()
	delegateTo         = delegateCmd.Arg("to", "Worker agent ID").Required().String()
	delegateTitle      = delegateCmd.Arg("title", "Task title").Required().String()
	delegatePrompt     = delegateCmd.Arg("prompt", "Prompt").Required().String()
	delegatePriority   = delegateCmd.Flag("priority", "Priority").Int32()
	resultsCmd         = app.Command("results", "Show delegation results of a coordinator")
	resultsCoordinator = resultsCmd.Arg("coordinator", "Coordinator agent ID").Required().String()
	resultsFollow      = resultsCmd.Flag("follow", "Keep streaming new results").Short('f').Bool()

	// Event commands
	eventsCmd      = app.Command("events", "Query the event log")
	eventsCategory = eventsCmd.Flag("category", "Category").Enum("lifecycle", "task", "delegation", "activity")
	eventsAgent    = eventsCmd.Flag("agent", "Agent ID").String()
	eventsType     = eventsCmd.Flag("type", "Event type").String()
	eventsTask     = eventsCmd.Flag("task", "Task ID").String()
	eventsSinceSeq = eventsCmd.Flag("since-seq", "Only events after this sequence number").Uint64()
	eventsLimit    = eventsCmd.Flag("limit", "Maximum number of events").Int32()
	eventsFollow   = eventsCmd.Flag("follow", "Keep streaming new events").Short('f').Bool()
)

type agentControl struct {
	action string
	id     *string
}

func init() {
	for action, help := range map[string]string{
		client.ActionStart:       "Start an agent",
		client.ActionStop:        "Stop an agent",
		client.ActionToggle:      "Start a stopped agent or stop a running one",
		client.ActionRestart:     "Restart an agent",
		client.ActionAcknowledge: "Acknowledge a crashed agent",
	} {
		cmd := agentCmd.Command(action, help)
		agentControls[cmd.FullCommand()] = agentControl{action: action, id: cmd.Arg("id", "Agent ID").Required().String()}
	}
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, command string) error {
	cfg := client.Config{BaseURL: *serverURL, APIKey: *apiKey}
	projects := client.NewProjectClient(cfg)
	agents := client.NewAgentClient(cfg)
	tasks := client.NewTaskClient(cfg)
	events := client.NewEventClient(cfg)
	out := newPrinter(os.Stdout, *jsonOut)

	if c, ok := agentControls[command]; ok {
		a, err := agents.Control(ctx, c.action, *c.id)
		if err != nil {
			return err
		}
		return out.agents([]*agentguildv1.Agent{a})
	}

	switch command {
	case projectListCmd.FullCommand():
		ps, err := projects.ListProjects(ctx)
		if err != nil {
			return err
		}
		return out.projects(ps)
	case projectCreateCmd.FullCommand():
		p, err := projects.CreateProject(ctx, *projectCreateName, *projectCreateDesc)
		if err != nil {
			return err
		}
		return out.projects([]*agentguildv1.Project{p})
	case projectDeleteCmd.FullCommand():
		return projects.DeleteProject(ctx, *projectDeleteID)

	case agentListCmd.FullCommand():
		as, err := agents.ListAgents(ctx, *agentListProject)
		if err != nil {
			return err
		}
		return out.agents(as)
	case agentGetCmd.FullCommand():
		a, err := agents.GetAgent(ctx, *agentGetID)
		if err != nil {
			return err
		}
		return out.agents([]*agentguildv1.Agent{a})
	case agentCreateCmd.FullCommand():
		req := &agentguildv1.CreateAgentRequest{
			ProjectID:    *agentCreateProject,
			Name:         *agentCreateName,
			Description:  *agentCreateDesc,
			Provider:     *agentCreateProvider,
			Model:        *agentCreateModel,
			SystemPrompt: *agentCreatePrompt,
			Features:     *agentCreateFeatures,
		}
		if *agentCreateMode != "" {
			req.MultiAgent = &agentguildv1.MultiAgent{Enabled: true, Mode: *agentCreateMode, Group: *agentCreateGroup}
		}
		a, err := agents.CreateAgent(ctx, req)
		if err != nil {
			return err
		}
		return out.agents([]*agentguildv1.Agent{a})
	case agentUpdateCmd.FullCommand():
		req := &agentguildv1.UpdateAgentRequest{ID: *agentUpdateID}
		if *agentUpdateModel != "" {
			req.Model = agentUpdateModel
		}
		if *agentUpdatePrompt != "" {
			req.SystemPrompt = agentUpdatePrompt
		}
		if *agentUpdateDesc != "" {
			req.Description = agentUpdateDesc
		}
		a, restarted, err := agents.UpdateAgent(ctx, req)
		if err != nil {
			return err
		}
		if restarted {
			out.note("agent restarted to apply the change")
		}
		return out.agents([]*agentguildv1.Agent{a})
	case agentDeleteCmd.FullCommand():
		return agents.DeleteAgent(ctx, *agentDeleteID)
	case agentHealthCmd.FullCommand():
		healthy, err := agents.HealthCheck(ctx, *agentHealthID)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("agent %s is not healthy", *agentHealthID)
		}
		out.note("healthy")
		return nil

	case taskListCmd.FullCommand():
		ts, err := tasks.ListTasks(ctx, &agentguildv1.ListTasksRequest{AgentID: *taskListAgent, Status: *taskListStatus})
		if err != nil {
			return err
		}
		return out.tasks(ts)
	case taskGetCmd.FullCommand():
		t, err := tasks.GetTask(ctx, *taskGetID)
		if err != nil {
			return err
		}
		return out.task(t)
	case taskCreateCmd.FullCommand():
		req := &agentguildv1.CreateTaskRequest{
			AgentID:    *taskCreateAgent,
			Title:      *taskCreateTitle,
			Prompt:     *taskCreatePrompt,
			Type:       *taskCreateType,
			Priority:   *taskCreatePriority,
			Recurrence: *taskCreateCron,
		}
		if *taskCreateAt != "" {
			at, err := time.Parse(time.RFC3339, *taskCreateAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			req.ExecuteAt = &at
		}
		t, err := tasks.CreateTask(ctx, req)
		if err != nil {
			return err
		}
		return out.task(t)
	case taskRunCmd.FullCommand():
		t, err := tasks.ExecuteTask(ctx, *taskRunID)
		if err != nil {
			return err
		}
		return out.task(t)
	case taskCancelCmd.FullCommand():
		t, err := tasks.CancelTask(ctx, *taskCancelID)
		if err != nil {
			return err
		}
		return out.task(t)
	case taskDeleteCmd.FullCommand():
		return tasks.DeleteTask(ctx, *taskDeleteID)
	case taskTrajectoryCmd.FullCommand():
		steps, err := tasks.Trajectory(ctx, *taskTrajectoryID, *taskTrajectoryRun)
		if err != nil {
			return err
		}
		return out.steps(steps)

	case delegateCmd.FullCommand():
		t, err := tasks.Delegate(ctx, &agentguildv1.DelegateRequest{
			FromAgentID: *delegateFrom,
			ToAgentID:   *delegateTo,
			Title:       *delegateTitle,
			Prompt:      *delegatePrompt,
			Priority:    *delegatePriority,
		})
		if err != nil {
			return err
		}
		return out.task(t)
	case resultsCmd.FullCommand():
		if *resultsFollow {
			return tasks.WatchDelegationResults(ctx, *resultsCoordinator, out.result)
		}
		rs, err := tasks.DelegationResults(ctx, *resultsCoordinator)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if err := out.result(r); err != nil {
				return err
			}
		}
		return nil

	case eventsCmd.FullCommand():
		if *eventsFollow {
			return events.Follow(ctx, &agentguildv1.SubscribeEventsRequest{
				Category: *eventsCategory,
				AgentID:  *eventsAgent,
				Type:     *eventsType,
				TaskID:   *eventsTask,
				SinceSeq: *eventsSinceSeq,
			}, out.event)
		}
		es, err := events.Query(ctx, &agentguildv1.QueryEventsRequest{
			Category: *eventsCategory,
			AgentID:  *eventsAgent,
			Type:     *eventsType,
			TaskID:   *eventsTask,
			SinceSeq: *eventsSinceSeq,
			Limit:    *eventsLimit,
		})
		if err != nil {
			return err
		}
		for _, e := range es {
			if err := out.event(e); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}
