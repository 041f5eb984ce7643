/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/allbin/go-comport"
	"github.com/spf13/cobra"
)

// trackCmd represents the track command
var trackCmd = &cobra.Command{
	Use:   "track <vendor:product>...",
	Short: "Track devices with specific vendor/product ids",
	Long: `Track serial devices by USB vendor/product id.

Every matching device that plugs in is reported, and its removal is
awaited and reported when it happens. Ids are hex pairs separated by a
colon and matched case-insensitively. Press Ctrl+C to stop.

Examples:
  comport track 2fe3:0100
  comport track 2fe3:0100 0403:6001
  comport track 2fe3:0100 --once`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		once, _ := cmd.Flags().GetBool("once")

		ids, err := parseIDArgs(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing ids: %v\n", err)
			os.Exit(1)
		}

		handle, tracked, err := comport.Track(sessionName(), ids,
			comport.WithLogger(newLogger()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening subscription: %v\n", err)
			os.Exit(1)
		}

		// Setup signal handler for Ctrl+C
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Fprintln(os.Stderr, "\nStopping track...")
			handle.Abort()
		}()

		fmt.Printf("Tracking %s (Ctrl+C to stop)\n", strings.Join(args, ", "))

		var wg sync.WaitGroup
		for tp := range tracked.Ports() {
			timestamp := time.Now().Format("15:04:05")
			fmt.Printf("[%s] plugged   %s %s:%s %s\n", timestamp,
				tp.Port, tp.Meta.VendorID, tp.Meta.ProductID, tp.Meta.SerialNumber)

			wg.Add(1)
			go func(tp *comport.TrackedPort) {
				defer wg.Done()
				err := tp.Unplugged(context.Background())
				timestamp := time.Now().Format("15:04:05")
				if err != nil {
					fmt.Printf("[%s] abandoned %s (%v)\n", timestamp, tp.Port, err)
					return
				}
				fmt.Printf("[%s] unplugged %s\n", timestamp, tp.Port)
				if once {
					handle.Abort()
				}
			}(tp)
		}
		wg.Wait()

		if err := tracked.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)

	trackCmd.Flags().Bool("once", false, "Exit after the first tracked device is unplugged")
}

// parseIDArgs converts "vendor:product" arguments into device ids
func parseIDArgs(args []string) ([]comport.DeviceID, error) {
	pairs := make([][2]string, 0, len(args))
	for _, arg := range args {
		vendor, product, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid id %q, expected vendor:product", arg)
		}
		pairs = append(pairs, [2]string{vendor, product})
	}
	return comport.ParseIDs(pairs)
}
