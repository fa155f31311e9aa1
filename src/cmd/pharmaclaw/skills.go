package main

import (
	"strings"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/tools/clawhub"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Manage installed skills",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listSkills(cmd, "")
	},
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills and their scripts",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listSkills(cmd, "")
	},
}

var skillsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search installed skills by name, description or tag",
	Long:  "Search matches a substring, or a glob when the query contains * or ?.",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return listSkills(cmd, argv[0])
	},
}

func listSkills(cmd *cobra.Command, query string) error {
	return withGateway(func(gw *gateway.Gateway) error {
		found := gw.Skills.Search(query)
		if len(found) == 0 {
			cmd.Println("No skills found.")
			return nil
		}
		for _, s := range found {
			printSkill(cmd, s)
		}
		return nil
	})
}

func printSkill(cmd *cobra.Command, s *skills.Skill) {
	if s.Version != "" {
		cmd.Printf("%s (%s)\n", s.Name, s.Version)
	} else {
		cmd.Println(s.Name)
	}
	if s.Description != "" {
		cmd.Printf("  %s\n", s.Description)
	}
	if len(s.Scripts) > 0 {
		cmd.Printf("  scripts: %s\n", strings.Join(s.Scripts, ", "))
	}
}

var skillsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete an installed skill",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			if err := gw.RemoveSkill(argv[0]); err != nil {
				return err
			}
			cmd.Printf("Removed skill %s\n", argv[0])
			return nil
		})
	},
}

var skillInstallURL string

var skillsInstallCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Install a skill from ClawHub or from a SKILL.md url",
	Args:  usageArgs(cobra.MaximumNArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		var name string
		if len(argv) > 0 {
			name = argv[0]
		}
		return withGateway(func(gw *gateway.Gateway) error {
			s, err := gw.InstallSkill(cmd.Context(), name, skillInstallURL)
			if err != nil {
				return err
			}
			cmd.Printf("Installed skill %s into %s\n", s.Name, s.Directory)
			return nil
		})
	},
}

var skillsRemoteCmd = &cobra.Command{
	Use:   "remote [query]",
	Short: "List or search skills published on ClawHub",
	Args:  usageArgs(cobra.MaximumNArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			var (
				found []clawhub.SkillSummary
				err   error
			)
			if len(argv) > 0 && argv[0] != "" {
				found, err = gw.ClawHub().SearchSkills(cmd.Context(), argv[0])
			} else {
				found, err = gw.ClawHub().ListSkills(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(found) == 0 {
				cmd.Println("No remote skills found.")
				return nil
			}
			for _, s := range found {
				cmd.Println(remoteLine(s.Slug, s.Summary))
			}
			return nil
		})
	},
}

func remoteLine(slug, summary string) string {
	if summary == "" {
		return slug
	}
	return slug + "  " + summary
}

func init() {
	skillsInstallCmd.Flags().StringVar(&skillInstallURL, "url", "", "download SKILL.md from this url instead of ClawHub")

	skillsCmd.AddCommand(skillsListCmd, skillsSearchCmd, skillsRemoveCmd, skillsInstallCmd, skillsRemoteCmd)
	rootCmd.AddCommand(skillsCmd)
}
