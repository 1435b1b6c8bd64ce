package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	notifymemory "github.com/JakeFAU/bbdc-slot-bot/internal/notify/memory"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func renderSlots(out io.Writer, slots booking.Slots, users []*booking.User) {
	if len(slots) == 0 {
		warnColor.Fprintln(out, "No Slot Found")
		return
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"Slot ID", "Date", "Session", "Time", "Preferred by"})
	for _, id := range slots.IDs() {
		slot := slots[id]
		var wanted []string
		for _, u := range users {
			if u.Prefers(slot) {
				wanted = append(wanted, u.Username)
			}
		}
		t.AppendRow(table.Row{id, slot.Date(), slot.Session, slot.Timing(), strings.Join(wanted, ", ")})
	}
	t.Render()
	successColor.Fprintf(out, "%d slot(s) released\n", len(slots))
}

func renderTick(out io.Writer, res worker.Result) {
	if len(res.Found) == 0 {
		warnColor.Fprintf(out, "tick %s (%s): No Slot Found\n", res.TickID, res.Account)
		return
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"User", "Result", "Slot ID", "Slot"})
	appendOutcomes(t, res.Booked, "booked")
	appendOutcomes(t, res.Failed, "failed")
	for _, id := range res.Remaining.IDs() {
		t.AppendRow(table.Row{"", "unclaimed", id, res.Remaining[id].String()})
	}
	t.Render()

	booked, failed := count(res.Booked), count(res.Failed)
	fmt.Fprintf(out, "tick %s (%s): %d found, ", res.TickID, res.Account, len(res.Found))
	successColor.Fprintf(out, "%d booked", booked)
	fmt.Fprint(out, ", ")
	if failed > 0 {
		failColor.Fprintf(out, "%d failed\n", failed)
	} else {
		fmt.Fprintln(out, "0 failed")
	}
}

func appendOutcomes(t table.Writer, byUser map[string]booking.Slots, label string) {
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		slots := byUser[u]
		for _, id := range slots.IDs() {
			t.AppendRow(table.Row{u, label, id, slots[id].String()})
		}
	}
}

func count(byUser map[string]booking.Slots) int {
	n := 0
	for _, slots := range byUser {
		n += len(slots)
	}
	return n
}

func renderRecorded(out io.Writer, msgs []notifymemory.Message) {
	if len(msgs) == 0 {
		return
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"Chat", "Message (not sent)"})
	for _, m := range msgs {
		t.AppendRow(table.Row{m.ChatID, m.Text})
	}
	t.Render()
}
