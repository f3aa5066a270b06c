package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	watt "watt/watt-client"
	"watt/watt-client/pkg/app"
	"watt/watt-client/pkg/remote"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var author string

func addClientCommands(root *cobra.Command) {
	loginCmd := &cobra.Command{
		Use:   "login [username] [password]",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			res, err := a.Auth.Login(ctx, watt.Credentials{Username: args[0], Password: args[1]})
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s (user %s).\n", args[0], res.UserID)
			return nil
		}),
	}
	registerCmd := &cobra.Command{
		Use:   "register [username] [password]",
		Short: "Create an account",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			if err := a.Auth.Register(ctx, watt.Credentials{Username: args[0], Password: args[1]}); err != nil {
				return err
			}
			fmt.Println("Account created. You can sign in now.")
			return nil
		}),
	}
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			return a.Auth.Logout(ctx)
		}),
	}

	feedbackCmd := &cobra.Command{
		Use:     "feedback",
		Short:   "List and manage feedback",
		Aliases: []string{"fb"},
	}
	feedbackAddCmd := &cobra.Command{
		Use:   "add [message]",
		Short: "Send new feedback",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runFeedbackAdd),
	}
	feedbackAddCmd.Flags().StringVar(&author, "author", "", "name shown next to the feedback")
	feedbackCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show all feedback",
			Args:  cobra.NoArgs,
			RunE:  withApp(runFeedbackList),
		},
		feedbackAddCmd,
		&cobra.Command{
			Use:   "edit [id] [message]",
			Short: "Change the message of a feedback entry",
			Args:  cobra.ExactArgs(2),
			RunE:  withApp(runFeedbackEdit),
		},
		&cobra.Command{
			Use:     "rm [id]",
			Short:   "Delete a feedback entry",
			Aliases: []string{"delete"},
			Args:    cobra.ExactArgs(1),
			RunE:    withApp(runFeedbackRemove),
		},
	)

	applianceCmd := &cobra.Command{
		Use:     "appliance",
		Short:   "List and manage appliances",
		Aliases: []string{"ap"},
	}
	applianceCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show all appliances",
			Args:  cobra.NoArgs,
			RunE:  withApp(runApplianceList),
		},
		&cobra.Command{
			Use:   "add [name] [watts] [hours-per-day]",
			Short: "Register an appliance",
			Args:  cobra.ExactArgs(3),
			RunE:  withApp(runApplianceAdd),
		},
		&cobra.Command{
			Use:   "edit [id] [name] [watts] [hours-per-day]",
			Short: "Change an appliance",
			Args:  cobra.ExactArgs(4),
			RunE:  withApp(runApplianceEdit),
		},
		&cobra.Command{
			Use:     "rm [id]",
			Short:   "Delete an appliance",
			Aliases: []string{"delete"},
			Args:    cobra.ExactArgs(1),
			RunE:    withApp(runApplianceRemove),
		},
	)

	root.AddCommand(loginCmd, registerCmd, logoutCmd, feedbackCmd, applianceCmd)
}

type appFunc func(ctx context.Context, a *app.App, args []string) error

func withApp(fn appFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a.Start(ctx)
		return fn(ctx, a, args)
	}
}

func runFeedbackList(ctx context.Context, a *app.App, args []string) error {
	err := a.Feedback.Load(ctx)
	if remote.KindOf(err) == remote.KindTransport && len(a.Feedback.Items()) > 0 {
		fmt.Fprintln(os.Stderr, "Offline, showing the last saved copy.")
		err = nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAUTHOR\tDATE\tMESSAGE")
	for _, f := range a.Feedback.Items() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, f.Author, f.CreatedAt, f.Message)
	}
	return w.Flush()
}

func runFeedbackAdd(ctx context.Context, a *app.App, args []string) error {
	f, err := a.Feedback.Add(ctx, author, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Feedback %d sent.\n", f.ID)
	return nil
}

func runFeedbackEdit(ctx context.Context, a *app.App, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	l := a.FeedbackList(ctx)
	defer l.Unmount()
	if err := l.Mount(); err != nil {
		return err
	}
	l.BeginEdit(id)
	if err := l.Edit(watt.Feedback{ID: id, Message: args[1]}); err != nil {
		return err
	}
	fmt.Printf("Feedback %d updated.\n", id)
	return nil
}

func runFeedbackRemove(ctx context.Context, a *app.App, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	l := a.FeedbackList(ctx)
	defer l.Unmount()
	if err := l.Mount(); err != nil {
		return err
	}
	l.BeginDelete(id)
	if err := l.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Feedback %d deleted.\n", id)
	return nil
}

func runApplianceList(ctx context.Context, a *app.App, args []string) error {
	l := a.ApplianceList(ctx)
	defer l.Unmount()
	if err := l.Mount(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWATTS\tHOURS/DAY\tBAND\tREGISTERED")
	for _, ap := range l.Items() {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n", ap.ID, ap.Name, ap.PowerWatts, ap.DailyUsageHours, ap.Band(), ap.RegisteredAt)
	}
	return w.Flush()
}

func runApplianceAdd(ctx context.Context, a *app.App, args []string) error {
	in, err := parseAppliance(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	out, err := a.RegisterAppliance(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Appliance %d registered (%s power).\n", out.ID, out.Band())
	return nil
}

func runApplianceEdit(ctx context.Context, a *app.App, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	in, err := parseAppliance(args[1], args[2], args[3])
	if err != nil {
		return err
	}
	in.ID = id

	l := a.ApplianceList(ctx)
	defer l.Unmount()
	if err := l.Mount(); err != nil {
		return err
	}
	l.BeginEdit(id)
	if err := l.Edit(in); err != nil {
		return err
	}
	fmt.Printf("Appliance %d updated.\n", id)
	return nil
}

func runApplianceRemove(ctx context.Context, a *app.App, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	l := a.ApplianceList(ctx)
	defer l.Unmount()
	if err := l.Mount(); err != nil {
		return err
	}
	l.BeginDelete(id)
	if err := l.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Appliance %d deleted.\n", id)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseAppliance(name, watts, hours string) (watt.Appliance, error) {
	w, err := strconv.ParseInt(watts, 10, 64)
	if err != nil {
		return watt.Appliance{}, errors.Errorf("invalid power %q", watts)
	}
	h, err := strconv.ParseInt(hours, 10, 64)
	if err != nil {
		return watt.Appliance{}, errors.Errorf("invalid hours %q", hours)
	}
	return watt.Appliance{Name: name, PowerWatts: w, DailyUsageHours: h}, nil
}
