package notify

import (
	"fmt"
	"strings"

	"hadirku/internal/attendance"
)

// Messages are rendered in the school's house style: a WhatsApp-flavoured
// Markdown card with the student identity block, the event detail, and the
// school signature.

const signature = "_Pesan otomatis Sistem Hadirku Digital._"

func header(title string) string {
	return "🔔 *" + title + "*\n------------------------------------------\n"
}

func identityBlock(evt attendance.Event) string {
	class := evt.Student.ClassName
	if class == "" {
		class = "-"
	}
	return fmt.Sprintf("Ananda: *%s*\nNIS: %s\nKelas: %s\n\n",
		evt.Student.Name, evt.Student.RollNumber, class)
}

func footer(schoolName string) string {
	return fmt.Sprintf("------------------------------------------\nSekolah: *%s*\n%s", schoolName, signature)
}

// BuildMessage renders the parent notification for one attendance event.
func BuildMessage(evt attendance.Event, schoolName string) string {
	dateStr := evt.At.Format("02 January 2006")
	timeStr := evt.At.Format("15:04")

	switch {
	case evt.Status == attendance.StatusSick || evt.Status == attendance.StatusPermit:
		label := "SAKIT"
		if evt.Status == attendance.StatusPermit {
			label = "IJIN"
		}
		return header("NOTIFIKASI KETERANGAN SISWA") +
			identityBlock(evt) +
			fmt.Sprintf("Tanggal: %s\n*STATUS: %s*\n", dateStr, label) +
			footer(schoolName)

	case evt.Kind == attendance.EventCheckOut:
		note := "\n✅ *KETERANGAN:* PULANG TEPAT WAKTU"
		if evt.IsEarly {
			note = "\n⚠️ *KETERANGAN:* PULANG MENDAHULUI"
		}
		return header("NOTIFIKASI KEPULANGAN SISWA") +
			identityBlock(evt) +
			fmt.Sprintf("Tanggal: %s\nJam Scan: %s WIB\n*STATUS: TELAH PULANG SEKOLAH*%s\n", dateStr, timeStr, note) +
			footer(schoolName)

	default:
		note := "\n✅ *STATUS:* HADIR TEPAT WAKTU"
		if evt.MinutesLate > 0 {
			note = fmt.Sprintf("\n⏰ *STATUS:* DATANG TERLAMBAT (%d menit)", evt.MinutesLate)
		}
		return header("NOTIFIKASI KEHADIRAN SISWA") +
			identityBlock(evt) +
			fmt.Sprintf("Tanggal: %s\nJam Scan: %s WIB\nMetode: %s%s\n", dateStr, timeStr, evt.Method, note) +
			footer(schoolName)
	}
}

// BuildAnnouncement renders a broadcast message.
func BuildAnnouncement(text, schoolName string) string {
	return fmt.Sprintf("📢 *PENGUMUMAN SEKOLAH*\n%s\n\n%s\n\n_Pesan otomatis via Hadirku Portal_", schoolName, text)
}

// NormalizePhone rewrites an Indonesian parent contact for the WhatsApp
// gateway: digits only, leading 0 swapped for the 62 country code.
func NormalizePhone(contact string) string {
	var b strings.Builder
	for _, r := range contact {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "62"):
		return digits
	default:
		return "62" + digits
	}
}
