package main

import "github.com/urfave/cli/v3"

func authCommands(r *Runner) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "Sign in with a one-time code sent for the email address",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "email"},
			},
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "challenge",
					Usage: "Challenge id of a code requested earlier",
				},
				&cli.StringFlag{
					Name:  "code",
					Usage: "One-time code; prompted for when omitted",
				},
			},
			Action: r.Login,
		},
		{
			Name:   "logout",
			Usage:  "Forget the stored session",
			Action: r.Logout,
		},
		{
			Name:   "whoami",
			Usage:  "Show the signed-in account",
			Action: r.WhoAmI,
		},
	}
}

func snippetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "title",
			Aliases: []string{"t"},
			Usage:   "Snippet title",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Tag (repeatable)",
		},
		&cli.StringFlag{
			Name:    "content",
			Aliases: []string{"c"},
			Usage:   "Snippet content",
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Read content from a file (- for stdin)",
		},
		&cli.BoolFlag{
			Name:  "public",
			Usage: "Make the snippet readable by anyone with its id",
		},
	}
}

func snippetCommands(r *Runner) []*cli.Command {
	return []*cli.Command{
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "List your snippets, newest first",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "json",
					Usage: "Output raw JSON",
				},
			},
			Action: r.List,
		},
		{
			Name:  "show",
			Usage: "Print a snippet",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id"},
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "shared",
					Usage: "Fetch a public snippet of any owner",
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "Output raw JSON",
				},
			},
			Action: r.Show,
		},
		{
			Name:   "create",
			Usage:  "Create a snippet",
			Flags:  snippetFlags(),
			Action: r.Create,
		},
		{
			Name:  "edit",
			Usage: "Change fields of a snippet",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id"},
			},
			Flags:  snippetFlags(),
			Action: r.Edit,
		},
		{
			Name:    "delete",
			Aliases: []string{"rm"},
			Usage:   "Delete a snippet",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id"},
			},
			Action: r.Delete,
		},
		{
			Name:  "public",
			Usage: "Share a snippet publicly",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id"},
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "off",
					Usage: "Make the snippet private again",
				},
			},
			Action: r.Public,
		},
	}
}

func aiCommands(r *Runner) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "explain",
			Usage: "Explain a snippet by id, or inline content",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id"},
			},
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "content",
					Aliases: []string{"c"},
					Usage:   "Explain this text instead of a stored snippet",
				},
				&cli.StringFlag{
					Name:    "file",
					Aliases: []string{"f"},
					Usage:   "Explain the contents of a file (- for stdin)",
				},
				&cli.BoolFlag{
					Name:  "no-stream",
					Usage: "Wait for the whole explanation",
				},
			},
			Action: r.Explain,
		},
		{
			Name:  "generate",
			Usage: "Generate code for a prompt",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "prompt"},
			},
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Target language"},
				&cli.StringFlag{Name: "framework", Usage: "Framework to use"},
				&cli.StringFlag{Name: "context", Usage: "Extra context for the model"},
			},
			Action: r.Generate,
		},
	}
}
