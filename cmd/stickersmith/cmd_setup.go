package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/stickersmith/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("StickerSmith Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Telegram bot token
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token", cfg.Telegram.Token)

		// 2. Swap service base URL (optional)
		cfg.FaceSwap.BaseURL = prompt(scanner, "Face swap API base URL (optional)", cfg.FaceSwap.BaseURL)

		// 3. Swap service API key (optional)
		cfg.FaceSwap.APIKey = prompt(scanner, "Face swap API key (optional)", cfg.FaceSwap.APIKey)

		// 4. Daily pack limit per user
		dailyStr := prompt(scanner, "Daily packs per user (0 = unlimited)", strconv.Itoa(cfg.Limits.Daily))
		if n, err := strconv.Atoi(dailyStr); err == nil {
			cfg.Limits.Daily = n
		}

		// 5. Template catalog path
		cfg.TemplatesPath = prompt(scanner, "Template catalog path", cfg.TemplatesPath)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if _, err := os.Stat(cfg.TemplatesPath); os.IsNotExist(err) {
			fmt.Println("No template catalog found; run `stickersmith templates init` to create a starter file.")
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
