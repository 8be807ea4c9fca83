package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/authaudit/internal/models"
)

func newDemoCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Manage demo items of the signed in user",
		PersistentPreRunE: c.withSession,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.app.api.Demo.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.app.print(items)
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			item, err := c.app.api.Demo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.app.print(item)
		},
	}

	var title, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := models.DemoItemCreate{Title: title}
			if cmd.Flags().Changed("description") {
				data.Description = &description
			}

			item, err := c.app.api.Demo.Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			return c.app.print(item)
		},
	}
	create.Flags().StringVar(&title, "title", "", "Item title")
	create.Flags().StringVar(&description, "description", "", "Item description")
	_ = create.MarkFlagRequired("title")

	var newTitle, newDescription string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change item title or description, unset flags are left unchanged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var data models.DemoItemUpdate
			if cmd.Flags().Changed("title") {
				data.Title = &newTitle
			}
			if cmd.Flags().Changed("description") {
				data.Description = &newDescription
			}

			item, err := c.app.api.Demo.Update(cmd.Context(), id, data)
			if err != nil {
				return err
			}
			return c.app.print(item)
		},
	}
	update.Flags().StringVar(&newTitle, "title", "", "New title")
	update.Flags().StringVar(&newDescription, "description", "", "New description")

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := c.app.api.Demo.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "item %s deleted\n", id)
			return err
		},
	}

	cmd.AddCommand(list, get, create, update, remove)
	return cmd
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
