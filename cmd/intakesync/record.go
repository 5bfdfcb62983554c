package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/outreachops/intakesync/internal/schedule"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/types"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage intake records",
}

var (
	addOrg       string
	addContact   string
	addEmail     string
	addPhone     string
	addCount     int
	addLogistics string
	addNotes     string
	addEventDate string
)

var recordAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a local intake record",
	Long: `Create an intake record in the local store.

When --event-date is given the record's follow-up task plan is scheduled
immediately. Dates accept YYYY-MM-DD or natural language ("next friday").`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}
		user, err := currentUser(cfg)
		if err != nil {
			exitf("%v", err)
		}

		db, err := openStore(cfg)
		if err != nil {
			exitf("%v", err)
		}
		defer db.Close()

		now := time.Now().UTC()
		record := &types.IntakeRecord{
			ID:            fmt.Sprintf("rec-%s", uuid.NewString()),
			Status:        types.StatusNew,
			OwnerID:       user.ID,
			OrgName:       addOrg,
			ContactName:   addContact,
			ContactEmail:  addEmail,
			ContactPhone:  addPhone,
			SandwichCount: addCount,
			Logistics:     addLogistics,
			Notes:         addNotes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if addEventDate != "" {
			event, err := parseEventDate(addEventDate)
			if err != nil {
				exitf("%v", err)
			}
			record.EventDate = &event
		}

		if err := db.CreateRecord(record); err != nil {
			exitf("%v", err)
		}

		ctx := context.Background()
		if plan := schedule.Plan(record.ID, record.CreatedAt, record.EventDate); len(plan) > 0 {
			if err := db.InsertTasks(ctx, plan); err != nil {
				exitf("record created but scheduling failed: %v", err)
			}
			fmt.Printf("Created %s with %d scheduled tasks\n", record.ID, len(plan))
			return
		}

		fmt.Printf("Created %s (no event date, no tasks scheduled)\n", record.ID)
	},
}

var (
	listStatus string
	listMine   bool
	listLimit  int
)

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List intake records",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}

		db, err := openStore(cfg)
		if err != nil {
			exitf("%v", err)
		}
		defer db.Close()

		filter := store.ListRecordsFilter{Status: listStatus, Limit: listLimit}
		if listMine {
			filter.OwnerID = cfg.UserID
		}

		records, err := db.ListRecords(context.Background(), filter)
		if err != nil {
			exitf("%v", err)
		}

		if len(records) == 0 {
			fmt.Println("No records found.")
			return
		}

		for _, r := range records {
			name := r.OrgName
			if name == "" {
				name = r.ContactName
			}
			line := fmt.Sprintf("%-40s  %-10s  %s", r.ID, r.Status, name)
			if r.EventDate != nil {
				line += "  event " + r.EventDate.Format("2006-01-02")
			}
			if r.ExternalEventID != "" {
				line += "  [remote " + r.ExternalEventID + "]"
			}
			fmt.Println(line)
		}
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show one record and its tasks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}

		db, err := openStore(cfg)
		if err != nil {
			exitf("%v", err)
		}
		defer db.Close()

		record, err := db.GetRecord(args[0])
		if err != nil {
			exitf("record %s not found", args[0])
		}

		fmt.Printf("ID:             %s\n", record.ID)
		fmt.Printf("Status:         %s\n", record.Status)
		fmt.Printf("Owner:          %s\n", record.OwnerID)
		if record.ExternalEventID != "" {
			fmt.Printf("Remote event:   %s\n", record.ExternalEventID)
		}
		if record.OrgName != "" {
			fmt.Printf("Organization:   %s\n", record.OrgName)
		}
		if record.ContactName != "" || record.ContactEmail != "" {
			fmt.Printf("Contact:        %s %s %s\n", record.ContactName, record.ContactEmail, record.ContactPhone)
		}
		if record.SandwichCount > 0 {
			fmt.Printf("Sandwiches:     %d\n", record.SandwichCount)
		}
		if record.Logistics != "" {
			fmt.Printf("Logistics:      %s\n", record.Logistics)
		}
		if record.EventDate != nil {
			fmt.Printf("Event date:     %s\n", record.EventDate.Format("2006-01-02"))
		}
		if record.Notes != "" {
			fmt.Printf("Notes:          %s\n", record.Notes)
		}

		tasks, err := db.ListTasksForRecord(context.Background(), record.ID)
		if err != nil {
			exitf("%v", err)
		}
		if len(tasks) > 0 {
			fmt.Println("\nTasks:")
			for _, task := range tasks {
				mark := " "
				if task.Completed {
					mark = "x"
				}
				fmt.Printf("  [%s] %s  %s (%s)\n", mark, task.DueDate.Format("2006-01-02"), task.Title, task.ID)
			}
		}
	},
}

var recordSetDateCmd = &cobra.Command{
	Use:   "set-date <record-id> <date>",
	Short: "Set a record's event date and regenerate its task plan",
	Long: `Change a record's event date.

The record's entire task set is deleted and the four canonical tasks are
recreated against the new date. Completion state on replaced tasks is
discarded; a changed date invalidates prior planning.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}

		db, err := openStore(cfg)
		if err != nil {
			exitf("%v", err)
		}
		defer db.Close()

		record, err := db.GetRecord(args[0])
		if err != nil {
			exitf("record %s not found", args[0])
		}

		event, err := parseEventDate(args[1])
		if err != nil {
			exitf("%v", err)
		}

		plan := schedule.Plan(record.ID, record.CreatedAt, &event)
		if err := db.SetEventDate(context.Background(), record.ID, event, plan); err != nil {
			exitf("%v", err)
		}

		fmt.Printf("Event date set to %s; %d tasks rescheduled\n", event.Format("2006-01-02"), len(plan))
	},
}

// parseEventDate accepts YYYY-MM-DD or natural language via when.
func parseEventDate(input string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(input, time.Now())
	if err != nil || result == nil {
		return time.Time{}, fmt.Errorf("could not parse date %q (use YYYY-MM-DD or e.g. \"next friday\")", input)
	}

	// Normalize to midnight UTC; the scheduler works in whole days.
	y, m, d := result.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func init() {
	recordAddCmd.Flags().StringVar(&addOrg, "org", "", "organization name")
	recordAddCmd.Flags().StringVar(&addContact, "contact", "", "contact name")
	recordAddCmd.Flags().StringVar(&addEmail, "email", "", "contact email")
	recordAddCmd.Flags().StringVar(&addPhone, "phone", "", "contact phone")
	recordAddCmd.Flags().IntVar(&addCount, "count", 0, "sandwich count")
	recordAddCmd.Flags().StringVar(&addLogistics, "logistics", "", "delivery/pickup notes")
	recordAddCmd.Flags().StringVar(&addNotes, "notes", "", "free-form notes")
	recordAddCmd.Flags().StringVar(&addEventDate, "event-date", "", "event date (YYYY-MM-DD or natural language)")

	recordListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	recordListCmd.Flags().BoolVar(&listMine, "mine", false, "only records you own")
	recordListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum records to show")

	recordCmd.AddCommand(recordAddCmd)
	recordCmd.AddCommand(recordListCmd)
	recordCmd.AddCommand(recordShowCmd)
	recordCmd.AddCommand(recordSetDateCmd)
	rootCmd.AddCommand(recordCmd)
}
