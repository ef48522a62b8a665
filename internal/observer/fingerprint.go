package observer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
)

// Fingerprint summarizes the parts of a state that count as a change:
// status, position rounded to one decimal, health, food and inventory.
func Fingerprint(st bot.ConnectionState) string {
	var b strings.Builder
	b.WriteString(string(st.Status))
	b.WriteByte('|')
	if st.Position != nil {
		b.WriteString(quantize(st.Position.X))
		b.WriteByte(',')
		b.WriteString(quantize(st.Position.Y))
		b.WriteByte(',')
		b.WriteString(quantize(st.Position.Z))
	}
	b.WriteByte('|')
	if st.Health != nil {
		b.WriteString(strconv.FormatFloat(*st.Health, 'g', -1, 64))
	}
	b.WriteByte('|')
	if st.Food != nil {
		b.WriteString(strconv.FormatFloat(*st.Food, 'g', -1, 64))
	}
	b.WriteByte('|')
	b.WriteString(inventoryDigest(st.Inventory))
	return b.String()
}

// HasChanged reports whether next differs from prev after quantization.
func HasChanged(prev, next bot.ConnectionState) bool {
	return Fingerprint(prev) != Fingerprint(next)
}

func quantize(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if s == "-0.0" {
		return "0.0"
	}
	return s
}

// inventoryDigest is independent of the order items are reported in.
func inventoryDigest(items []bridge.Item) string {
	if len(items) == 0 {
		return ""
	}
	sorted := append([]bridge.Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Slot != sorted[j].Slot {
			return sorted[i].Slot < sorted[j].Slot
		}
		return sorted[i].Name < sorted[j].Name
	})
	var b strings.Builder
	for _, it := range sorted {
		b.WriteString(strconv.Itoa(it.Slot))
		b.WriteByte(':')
		b.WriteString(it.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(it.Count))
		b.WriteByte(';')
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

func digest(st bot.ConnectionState) uint64 {
	return xxhash.Sum64String(Fingerprint(st))
}
