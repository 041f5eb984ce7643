package components

import (
	"sort"

	"github.com/allbin/go-comport"
	"github.com/allbin/go-comport/internal/tui/styles"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/evertras/bubble-table/table"
)

const (
	columnPort        = "port"
	columnVendor      = "vendor"
	columnProduct     = "product"
	columnSerial      = "serial"
	columnDescription = "description"
)

// PortsTable is the live table of currently attached ports. Plug events
// add rows, Unplug events remove them; rows stay sorted by port name.
type PortsTable struct {
	model table.Model
	ports map[string]comport.PortMeta
}

func NewPortsTable(width int) *PortsTable {
	columns := []table.Column{
		table.NewColumn(columnPort, "Port", 8),
		table.NewColumn(columnVendor, "VID", 6),
		table.NewColumn(columnProduct, "PID", 6),
		table.NewColumn(columnSerial, "Serial", 16),
		table.NewFlexColumn(columnDescription, "Description", 1),
	}

	model := table.New(columns).
		WithBaseStyle(styles.TableBaseStyle).
		HeaderStyle(styles.TableHeaderStyle).
		WithTargetWidth(width)

	return &PortsTable{
		model: model,
		ports: make(map[string]comport.PortMeta),
	}
}

func (pt *PortsTable) SetWidth(width int) {
	pt.model = pt.model.WithTargetWidth(width)
}

func (pt *PortsTable) SetPageSize(rows int) {
	if rows < 1 {
		rows = 1
	}
	pt.model = pt.model.WithPageSize(rows)
}

// Apply folds one hotplug event into the table
func (pt *PortsTable) Apply(ev comport.Event) {
	switch ev.Type {
	case comport.Plug:
		if ev.Meta != nil {
			pt.ports[ev.Port] = *ev.Meta
		} else {
			pt.ports[ev.Port] = comport.PortMeta{Name: ev.Port}
		}
	case comport.Unplug:
		delete(pt.ports, ev.Port)
	}
	pt.rebuild()
}

func (pt *PortsTable) Count() int {
	return len(pt.ports)
}

func (pt *PortsTable) rebuild() {
	names := make([]string, 0, len(pt.ports))
	for name := range pt.ports {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		meta := pt.ports[name]
		rows = append(rows, table.NewRow(table.RowData{
			columnPort:        name,
			columnVendor:      meta.VendorID,
			columnProduct:     meta.ProductID,
			columnSerial:      meta.SerialNumber,
			columnDescription: meta.Description,
		}))
	}
	pt.model = pt.model.WithRows(rows)
}

func (pt *PortsTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	pt.model, cmd = pt.model.Update(msg)
	return cmd
}

func (pt *PortsTable) View() string {
	return pt.model.View()
}
