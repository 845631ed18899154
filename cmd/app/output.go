package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func printCharacters(page domain.PageResult) {
	rows := make([][]string, 0, len(page.Characters))
	for _, c := range page.Characters {
		rows = append(rows, []string{
			c.Name,
			orDash(c.BirthYear),
			orDash(c.Gender),
			orDash(c.Height),
			orDash(c.Mass),
			strconv.Itoa(len(c.Films)),
			c.URL,
		})
	}
	printTable([]string{"NAME", "BIRTH_YEAR", "GENDER", "HEIGHT", "MASS", "FILMS", "URL"}, rows)
	pages := (page.TotalCount + domain.PageSize - 1) / domain.PageSize
	fmt.Printf("page %d of %d (%d total)\n", page.Page, max(pages, 1), page.TotalCount)
}

func printNames(order []string, names map[string]string) {
	rows := make([][2]string, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, u := range order {
		if seen[u] {
			continue
		}
		seen[u] = true
		rows = append(rows, [2]string{u, orDash(names[u])})
	}
	printKV(rows)
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetType,
			formatMaybeUint(item.TargetID),
			orDash(item.ActorUserEmail),
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
