package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled follow-up tasks",
}

var (
	taskDueWithin int
	taskListLimit int
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tasks, soonest due first",
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

		var dueBy time.Time
		if taskDueWithin > 0 {
			dueBy = time.Now().UTC().AddDate(0, 0, taskDueWithin)
		}

		tasks, err := db.ListOpenTasks(context.Background(), dueBy, taskListLimit)
		if err != nil {
			exitf("%v", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No open tasks.")
			return
		}

		for _, task := range tasks {
			fmt.Printf("%s  %-24s  %-10s  record %s  (%s)\n",
				task.DueDate.Format("2006-01-02"), task.Title, task.Type, task.IntakeID, task.ID)
		}
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task completed",
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

		if err := db.CompleteTask(context.Background(), args[0]); err != nil {
			exitf("task %s not found", args[0])
		}

		fmt.Printf("Completed %s\n", args[0])
	},
}

func init() {
	taskListCmd.Flags().IntVar(&taskDueWithin, "due-within", 0, "only tasks due within N days")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "maximum tasks to show")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
	rootCmd.AddCommand(taskCmd)
}
