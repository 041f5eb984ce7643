/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/allbin/go-comport"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached serial ports",
	Long: `List the serial ports currently attached to the system.

Ports are read from the Windows registry together with the USB metadata
recorded for them: vendor id, product id, serial number and, when the
driver reports them, a description and physical location.

Examples:
  comport list
  comport list --table
  comport list --vendor 2fe3
  comport list --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := comport.Scan()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		vendorFilter, _ := cmd.Flags().GetString("vendor")
		tableFormat, _ := cmd.Flags().GetBool("table")
		jsonFormat, _ := cmd.Flags().GetBool("json")

		metas := filterPorts(ports, vendorFilter)
		if len(metas) == 0 {
			if vendorFilter != "" {
				fmt.Printf("No serial ports found matching vendor: %s\n", vendorFilter)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		switch {
		case jsonFormat:
			renderJSON(metas)
		case tableFormat:
			renderTable(metas)
		default:
			renderSimple(metas)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("vendor", "", "Only show ports with this USB vendor id (hex)")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().Bool("json", false, "Emit one JSON object per port")
}

// filterPorts applies the vendor filter and returns the ports sorted by name
func filterPorts(ports map[string]comport.PortMeta, vendor string) []comport.PortMeta {
	vendor = strings.ToLower(vendor)
	metas := make([]comport.PortMeta, 0, len(ports))
	for _, meta := range ports {
		if vendor != "" && strings.ToLower(meta.VendorID) != vendor {
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}

// renderTable renders the port list in a styled static table format
func renderTable(metas []comport.PortMeta) {
	fmt.Printf("Found %d serial port(s):\n\n", len(metas))

	portWidth := 8
	idWidth := 10
	serialWidth := 16
	descWidth := 30

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s",
		portWidth, "Port",
		idWidth, "VID:PID",
		serialWidth, "Serial",
		descWidth, "Description")
	fmt.Println(headerStyle.Render(header))

	for _, meta := range metas {
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s",
			portWidth, meta.Name,
			idWidth, fmt.Sprintf("%s:%s", meta.VendorID, meta.ProductID),
			serialWidth, meta.SerialNumber,
			descWidth, meta.Description)
		fmt.Println(cellStyle.Render(row))
	}
}

// renderSimple renders the port list in simple text format
func renderSimple(metas []comport.PortMeta) {
	for _, meta := range metas {
		fmt.Println(meta.Name)
	}
}

// renderJSON emits one port per line in the event metadata wire format
func renderJSON(metas []comport.PortMeta) {
	enc := json.NewEncoder(os.Stdout)
	for _, meta := range metas {
		if err := enc.Encode(meta); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding port: %v\n", err)
			os.Exit(1)
		}
	}
}
