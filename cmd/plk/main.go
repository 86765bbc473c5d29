package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plinkage/internal/app"
	"plinkage/internal/config"
	"plinkage/internal/db"
	"plinkage/internal/domain"
	"plinkage/internal/engine"
	"plinkage/internal/repo"
	"plinkage/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "plk",
	Short: "PLinkage CLI",
	Long: `PLinkage links project owners with skill providers.
Core concepts:
- Workspace: your .plinkage directory holding the database; plinkage.yml tunes validation.
- Owners post projects with a fixed headcount (resources needed).
- Providers apply to projects; owners send offers. Both are engagements.
- Accepting an engagement joins the provider to the project roster and burns a slot.
- Owners apply batch project updates: field edits, member removals and denied resignations land atomically.
- Members propose resignations; the owner approves (removal) or denies them in the next update.
- Completed projects unlock member ratings, folded into each provider's average.
- Event log: diary of changes, view with 'plk log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLINKAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier (owner or provider id)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(ownerCmd())
	rootCmd.AddCommand(providerCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(engagementCmd())
	rootCmd.AddCommand(resignCmd())
	rootCmd.AddCommand(rateCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func ownerCmd() *cobra.Command {
	owner := &cobra.Command{Use: "owner", Short: "Manage project owners"}
	owner.AddCommand(ownerRegisterCmd())
	owner.AddCommand(ownerListCmd())
	owner.AddCommand(ownerShowCmd())
	owner.AddCommand(ownerStatusCmd())
	return owner
}

func ownerStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Activate or deactivate a project owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				st, err := domain.ParseProfileStatus(status)
				if err != nil {
					return err
				}
				return r.UpdateOwnerStatus(ctx, args[0], st, time.Now().UTC().Format(time.RFC3339))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active or deactivated")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func ownerRegisterCmd() *cobra.Command {
	var firstName, lastName, email, location string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a project owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.RegisterOwner(ctx, firstName, lastName, email, location)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&location, "location", "", "location")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func ownerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOwners(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Status"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.FirstName + " " + o.LastName, o.Email, o.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ownerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := r.GetOwner(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func providerCmd() *cobra.Command {
	provider := &cobra.Command{Use: "provider", Short: "Manage skill providers"}
	provider.AddCommand(providerRegisterCmd())
	provider.AddCommand(providerListCmd())
	provider.AddCommand(providerShowCmd())
	provider.AddCommand(providerProjectsCmd())
	provider.AddCommand(providerRatingsCmd())
	provider.AddCommand(providerStatusCmd())
	return provider
}

func providerStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Activate or deactivate a skill provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				st, err := domain.ParseProfileStatus(status)
				if err != nil {
					return err
				}
				return r.UpdateProviderStatus(ctx, args[0], st, time.Now().UTC().Format(time.RFC3339))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active or deactivated")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func providerRegisterCmd() *cobra.Command {
	var firstName, lastName, email, location string
	var skills []string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a skill provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterProvider(ctx, firstName, lastName, email, location, skills)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "skill (repeatable)")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func providerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List skill providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProviders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Skills", "Rating", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{
						p.ID,
						p.FirstName + " " + p.LastName,
						strings.Join(p.Skills, ","),
						fmt.Sprintf("%.1f (%d)", p.Rating(), p.RatingCount),
						p.Status,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func providerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a skill provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProvider(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func providerProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects <id>",
		Short: "List projects the provider belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ProjectsByMember(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func providerRatingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratings <id>",
		Short: "List ratings received by the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRatingsByProvider(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var skills []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			opts.OwnerID = actor
			opts.ActorID = actor
			opts.SkillsRequired = skills
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "required skill (repeatable)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "end date (RFC3339)")
	cmd.Flags().IntVar(&opts.ResourcesNeeded, "resources-needed", 1, "headcount")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Needed", "Open", "Members"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.ResourcesNeeded, p.ResourcesAvailable, len(p.Members)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.OwnerID, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (active, completed, deactivated)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				b, _ := json.MarshalIndent(p, "", "  ")
				fmt.Println(string(b))
				if len(p.Members) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Member", "Name", "Rate", "TimeFrame", "Resigning"})
					for _, m := range p.Members {
						tw.AppendRow(table.Row{m.MemberID, m.FirstName + " " + m.LastName, m.Rate, m.TimeFrame, m.IsResigning})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var description, location, priority, start, end, status string
	var skills, removals, rejections []string
	var resourcesNeeded int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Apply a batch project update",
		Long: `Applies field edits, member removals and denied resignations in one
atomic step. Every resigning member must appear in --remove (approve) or
--deny-resignation (deny).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			var edits engine.ProjectEdits
			if cmd.Flags().Changed("description") {
				edits.Description = &description
			}
			if cmd.Flags().Changed("location") {
				edits.Location = &location
			}
			if cmd.Flags().Changed("priority") {
				edits.Priority = &priority
			}
			if cmd.Flags().Changed("skill") {
				edits.SkillsRequired = skills
			}
			if cmd.Flags().Changed("start") {
				edits.StartDate = &start
			}
			if cmd.Flags().Changed("end") {
				edits.EndDate = &end
			}
			if cmd.Flags().Changed("resources-needed") {
				edits.ResourcesNeeded = &resourcesNeeded
			}
			if cmd.Flags().Changed("status") {
				parsed, err := domain.ParseProjectStatus(status)
				if err != nil {
					return err
				}
				edits.Status = &parsed
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReconcileProjectUpdate(ctx, args[0], edits, removals, rejections, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "required skill (repeatable)")
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (RFC3339)")
	cmd.Flags().IntVar(&resourcesNeeded, "resources-needed", 0, "headcount")
	cmd.Flags().StringVar(&status, "status", "", "status (active, completed, deactivated)")
	cmd.Flags().StringArrayVar(&removals, "remove", []string{}, "member id to remove (repeatable)")
	cmd.Flags().StringArrayVar(&rejections, "deny-resignation", []string{}, "member id whose resignation is denied (repeatable)")
	return cmd
}

func engagementCmd() *cobra.Command {
	eng := &cobra.Command{Use: "engagement", Short: "Manage engagements (offers and applications)"}
	eng.AddCommand(engagementSendCmd())
	eng.AddCommand(engagementListCmd())
	eng.AddCommand(engagementShowCmd())
	eng.AddCommand(engagementAcceptCmd())
	eng.AddCommand(engagementRejectCmd())
	return eng
}

func engagementSendCmd() *cobra.Command {
	var kind, to, projectID string
	var rate float64
	var timeFrame int
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an offer or application",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			parsed, err := domain.ParseEngagementKind(kind)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.CreateEngagement(ctx, engine.EngagementDraft{
					Kind:       parsed,
					SenderID:   actor,
					ReceiverID: to,
					ProjectID:  projectID,
					Rate:       rate,
					TimeFrame:  timeFrame,
				}, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "engagement kind (offer, application)")
	cmd.Flags().StringVar(&to, "to", "", "receiver id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().IntVar(&timeFrame, "time-frame", 0, "time frame in hours")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func engagementListCmd() *cobra.Command {
	var f repo.EngagementFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List engagements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEngagements(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Project", "Sender", "Receiver", "Status", "Rate", "Hours"})
				for _, eng := range items {
					tw.AppendRow(table.Row{eng.ID, eng.Kind, eng.ProjectID, eng.SenderID, eng.ReceiverID, eng.Status, eng.Rate, eng.TimeFrame})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter (offer, application)")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (pending, accepted, rejected)")
	cmd.Flags().StringVar(&f.PartyID, "party", "", "sender or receiver filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func engagementShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				eng, err := r.GetEngagement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func engagementAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a pending engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.AcceptEngagement(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func engagementRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.RejectEngagement(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func resignCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "resign <project-id>",
		Short: "Propose a resignation from a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ProposeResignation(ctx, args[0], actor, reason, actor); err != nil {
					return err
				}
				fmt.Println("resignation filed; the owner resolves it in the next project update")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for resigning")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func rateCmd() *cobra.Command {
	var member, comment string
	var score float64
	cmd := &cobra.Command{
		Use:   "rate <project-id>",
		Short: "Rate a member of a completed project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rt, err := e.RateMember(ctx, args[0], member, score, comment, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(rt)
			})
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member id")
	cmd.Flags().Float64Var(&score, "score", 0, "score")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Direct messages"}
	msg.AddCommand(messageSendCmd())
	msg.AddCommand(messageListCmd())
	return msg
}

func messageSendCmd() *cobra.Command {
	var to, body string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SendMessage(ctx, actor, to, body)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "receiver id")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func messageListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages received by the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMessages(ctx, repo.MessageFilters{ReceiverID: actor, Limit: limit})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage plinkage.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that plinkage.yml exists and parses",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := config.Load(workspace); err != nil {
				return err
			}
			fmt.Println("ok:", config.Path(workspace))
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default plinkage.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PLINKAGE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PLINKAGE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   appCtx.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(appCtx.Engine, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving PLinkage API")
			fmt.Printf("Serving PLinkage API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

// --- helpers ---

func requireActor() (string, error) {
	actor := strings.TrimSpace(viper.GetString("actor-id"))
	if actor == "" {
		return "", fmt.Errorf("--actor-id required (or set PLINKAGE_ACTOR_ID)")
	}
	return actor, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
