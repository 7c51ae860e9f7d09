package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/editor"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
)

// =============================================================================
// Drafts
// =============================================================================

func newCmd() *cobra.Command {
	var customer, site, assetModel, job string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a draft report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.manager.Create(ctx)
				if err != nil {
					return err
				}
				edits := []struct{ path, value string }{
					{"customer.companyName", customer},
					{"site.name", site},
					{"asset.model", assetModel},
					{"visit.jobNumber", job},
				}
				for _, e := range edits {
					if e.value == "" {
						continue
					}
					if err := s.ApplyFieldEdit(ctx, e.path, e.value); err != nil {
						return err
					}
				}
				if err := s.SaveDraft(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.ID())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer company name")
	cmd.Flags().StringVar(&site, "site", "", "site name")
	cmd.Flags().StringVar(&assetModel, "asset-model", "", "serviced equipment model")
	cmd.Flags().StringVar(&job, "job", "", "job number")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reports on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				docs, err := a.manager.List(ctx)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Number", "State", "Title", "Issues", "Updated"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.LocalID, d.RemoteSequenceID, d.LifecycleState, d.Title(), len(d.Issues), export.FormatDateTime(d.UpdatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				doc, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					artifact, err := a.renderer.Render(ctx, doc, domain.ExportFormatJSON)
					if err != nil {
						return err
					}
					_, err = out.Write(artifact.Data)
					return err
				}
				printDetail(out, doc)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the JSON export")
	return cmd
}

func printDetail(w io.Writer, doc *domain.ReportDocument) {
	fmt.Fprintf(w, "%s  %s  [%s]\n", doc.DisplayID(), doc.Title(), doc.LifecycleState)
	fmt.Fprintf(w, "Author:   %s\n", doc.AuthorDisplayName)
	fmt.Fprintf(w, "Updated:  %s\n", export.FormatDateTime(doc.UpdatedAt))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, path := range document.EditableFields() {
		value, err := document.FieldValue(doc, path)
		if err != nil || isEmpty(value) {
			continue
		}
		tw.AppendRow(table.Row{path, value})
	}
	tw.Render()

	if len(doc.Issues) > 0 {
		it := table.NewWriter()
		it.SetOutputMirror(w)
		it.AppendHeader(table.Row{"Issue", "Title", "Category", "Urgency", "Resolved"})
		for _, issue := range doc.Issues {
			it.AppendRow(table.Row{issue.IssueID, issue.DisplayTitle(), issue.Category, issue.Urgency, issue.Resolved})
		}
		it.Render()
	}

	if atts := doc.AllAttachments(); len(atts) > 0 {
		at := table.NewWriter()
		at.SetOutputMirror(w)
		at.AppendHeader(table.Row{"Attachment", "File", "Bucket", "State", "Size"})
		for _, att := range atts {
			at.AppendRow(table.Row{att.AttachmentID, att.DisplayFileName, att.Bucket.Label(), att.IngestionState, att.FormatSize()})
		}
		at.Render()
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case []string:
		return len(x) == 0
	}
	return false
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <path> <value>",
		Short: "Set a report field, e.g. customer.companyName",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				return s.ApplyFieldEdit(ctx, args[1], args[2])
			})
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <list> <text>",
		Short: "Append to a list (toolsBought, toolsUsed, newNameplates)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := document.ParseList(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				item, err := s.AddListItem(ctx, list, args[2])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), item.ItemID)
				return nil
			})
		},
	}
}

// =============================================================================
// Issues
// =============================================================================

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue", Short: "Manage report issues"}
	cmd.AddCommand(issueAddCmd())
	cmd.AddCommand(issueRemoveCmd())
	return cmd
}

func issueAddCmd() *cobra.Command {
	var title, category, urgency, observation string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				ed, err := s.OpenIssue("")
				if err != nil {
					return err
				}
				edits := []struct{ path, value string }{
					{"title", title},
					{"category", category},
					{"urgency", urgency},
					{"observationText", observation},
				}
				for _, e := range edits {
					if e.value == "" {
						continue
					}
					if _, err := ed.ApplyFieldEdit(e.path, e.value); err != nil {
						_ = s.DiscardIssue(ed.ID())
						return err
					}
				}
				issue, err := s.SaveIssue(ctx, ed.ID())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), issue.IssueID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "short description")
	cmd.Flags().StringVar(&category, "category", "", "electrical, mechanical, controls, ...")
	cmd.Flags().StringVar(&urgency, "urgency", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&observation, "observation", "", "what was observed")
	return cmd
}

func issueRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> <issueId>",
		Short: "Remove an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				return s.RemoveIssue(ctx, args[1])
			})
		},
	}
}

// =============================================================================
// Attachments and AI
// =============================================================================

func attachCmd() *cobra.Command {
	var bucket, issueID, fieldRef string
	cmd := &cobra.Command{
		Use:   "attach <id> <file>...",
		Short: "Attach files and wait for them to upload",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := domain.ParseAttachmentBucket(bucket)
			if err != nil {
				return err
			}
			files := make([]ingest.Source, 0, len(args)-1)
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, ingest.Source{FileName: filepath.Base(path), Data: data})
			}

			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				owner := document.ReportOwner
				if issueID != "" {
					owner = document.IssueOwner(issueID)
				}
				placeholders, err := s.Attach(ctx, editor.AttachRequest{
					Owner:    owner,
					Bucket:   b,
					FieldRef: fieldRef,
					Files:    files,
				})
				if err != nil {
					return err
				}
				a.pipeline.Wait()

				doc := s.Snapshot()
				out := cmd.OutOrStdout()
				for _, p := range placeholders {
					att := doc.FindAttachment(p.AttachmentID)
					if att == nil {
						continue
					}
					line := fmt.Sprintf("%s  %s  %s", att.AttachmentID, att.DisplayFileName, att.IngestionState)
					if att.Error != "" {
						line += "  " + att.Error
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "album: issue_photo, summary_photo, nameplate_scan, ...")
	cmd.Flags().StringVar(&issueID, "issue", "", "attach to this issue instead of the report")
	cmd.Flags().StringVar(&fieldRef, "field", "", "field the files relate to")
	return cmd
}

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <id>",
		Short: "Draft the narrative summary with AI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				text, err := s.GenerateSummary(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func scanCmd() *cobra.Command {
	var hint string
	cmd := &cobra.Command{
		Use:   "scan <id> <attachmentId>",
		Short: "Read asset fields from a nameplate photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(ctx context.Context, a *app, s *editor.Session) error {
				fields, err := s.ScanNameplate(ctx, args[1], hint)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(fields))
				for k := range fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "asset.%s = %s\n", k, fields[k])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&hint, "hint", "", "extra context for the model")
	return cmd
}

// =============================================================================
// Completion and Export
// =============================================================================

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Assign the report number and publish the exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.manager.Open(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				doc, err := s.Complete(ctx, func(status string) {
					fmt.Fprintln(out, status)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Report %s completed.\n", doc.DisplayID())
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var format, outPath string
	var retry bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write one export file, or --retry a failed publish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if retry {
					s, err := a.manager.Open(ctx, args[0])
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					if doc := s.Snapshot(); doc.IsCompleted() {
						published, err := a.publisher.Verify(ctx, doc)
						if err != nil {
							return err
						}
						if published {
							fmt.Fprintln(out, "Export files are already published.")
							return nil
						}
					}
					return s.RetryExport(ctx, func(status string) { fmt.Fprintln(out, status) })
				}

				f, err := domain.ParseExportFormat(format)
				if err != nil {
					return err
				}
				doc, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				artifact, err := a.renderer.Render(ctx, doc, f)
				if err != nil {
					return domain.ExportFailed(err, "cli.export")
				}
				if outPath == "" {
					outPath = fmt.Sprintf("report-%s.%s", doc.DisplayID(), f.FileExtension())
				}
				if err := os.WriteFile(outPath, artifact.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "html, md or json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file")
	cmd.Flags().BoolVar(&retry, "retry", false, "re-render and re-upload a completed report")
	return cmd
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <id>",
		Short: "Show a report's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				events, err := a.store.ListAuditEvents(ctx, args[0])
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Time", "Actor", "Action", "Field", "Detail"})
				for _, e := range events {
					tw.AppendRow(table.Row{export.FormatDateTime(e.Timestamp), e.Actor, e.ActionKind, e.FieldPath, auditDetail(e)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func auditDetail(e *domain.AuditEvent) string {
	var parts []string
	if e.OldValue != nil || e.NewValue != nil {
		parts = append(parts, fmt.Sprintf("%v -> %v", compact(e.OldValue), compact(e.NewValue)))
	}
	if len(e.Metadata) > 0 {
		parts = append(parts, compact(e.Metadata))
	}
	return strings.Join(parts, " ")
}

func compact(v any) string {
	if v == nil {
		return "-"
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func previewCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Render the Markdown export in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				doc, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				artifact, err := a.renderer.Render(ctx, doc, domain.ExportFormatMarkdown)
				if err != nil {
					return err
				}
				r, err := glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(width),
				)
				if err != nil {
					return err
				}
				rendered, err := r.Render(string(artifact.Data))
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 100, "wrap width")
	return cmd
}
