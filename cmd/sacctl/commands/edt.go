package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/spf13/cobra"

	"sac/internal/datasource"
	"sac/internal/models"
)

var edtOpts struct {
	classe string
	salle  string
	date   string
	pdf    string
}

var edtCmd = &cobra.Command{
	Use:   "edt",
	Short: "Print a class or room timetable as a PDF sheet",
	Example: `  sacctl edt --classe 42 --date week --pdf 42.pdf
  sacctl edt --salle B204 --date 2025-03-10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (edtOpts.classe == "") == (edtOpts.salle == "") {
			return errors.New("edt: exactly one of --classe or --salle is required")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		client := datasource.NewFromConfig()
		r, err := datasource.ParseDateRange(edtOpts.date, time.Now().In(client.Location()))
		if err != nil {
			return err
		}

		var (
			entries []models.ScheduleEntry
			title   string
		)
		if edtOpts.classe != "" {
			id, err := strconv.Atoi(edtOpts.classe)
			if err != nil {
				return fmt.Errorf("edt: class id %q is not a number", edtOpts.classe)
			}
			entries, err = client.ClassTimetableByID(ctx, id, r)
			if err != nil {
				return err
			}
			title = "Classe " + edtOpts.classe
			if len(entries) > 0 && entries[0].Classe != "" {
				title = "Classe " + entries[0].Classe
			}
		} else {
			entries, err = client.RoomTimetable(ctx, edtOpts.salle, r)
			if err != nil {
				return err
			}
			title = "Salle " + edtOpts.salle
		}

		if edtOpts.pdf == "" {
			return writeJSON(cmd, "", entries)
		}
		f, err := os.Create(edtOpts.pdf)
		if err != nil {
			return err
		}
		if err := renderTimetable(f, title, r, entries, time.Now()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d slots saved to %s\n", len(entries), edtOpts.pdf)
		return nil
	},
}

func init() {
	f := edtCmd.Flags()
	f.StringVar(&edtOpts.classe, "classe", "", "Class id")
	f.StringVar(&edtOpts.salle, "salle", "", "Room label or code")
	f.StringVar(&edtOpts.date, "date", "week", "Date option (see sacctl data --help)")
	f.StringVar(&edtOpts.pdf, "pdf", "", "Write a PDF sheet to this file instead of JSON")
}

// ---------- PDF sheet ----------

const (
	sheetPageW   = 210.0
	sheetPageH   = 297.0
	sheetMarginL = 15.0
	sheetMarginR = 15.0
	sheetMarginT = 15.0
	sheetRowH    = 7.0
)

var (
	cInk    = [3]int{26, 32, 44}
	cInk50  = [3]int{120, 126, 138}
	cRule   = [3]int{220, 224, 230}
	cHead   = [3]int{27, 79, 148}
	cBand   = [3]int{243, 246, 251}
	cWhite  = [3]int{255, 255, 255}
	weekday = [...]string{"Dimanche", "Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi"}
)

func setFill(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

// sheetColumns are the table columns; widths add up to the content width.
var sheetColumns = []struct {
	label string
	width float64
}{
	{"Horaire", 26},
	{"Matière", 52},
	{"Professeur", 44},
	{"Salle", 26},
	{"Classe", 32},
}

// renderTimetable writes entries as a day-by-day table. Entries must be
// sorted by start time.
func renderTimetable(w io.Writer, title string, r datasource.DateRange, entries []models.ScheduleEntry, generated time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(sheetMarginL, sheetMarginT, sheetMarginR)
	pdf.SetAutoPageBreak(false, 20)
	pdf.SetTitle(title, true)
	pdf.SetCreator("sacctl", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		setDraw(pdf, cRule)
		pdf.SetLineWidth(0.3)
		pdf.Line(sheetMarginL, pdf.GetY(), sheetPageW-sheetMarginR, pdf.GetY())
		pdf.SetY(-11)
		pdf.SetFont("Helvetica", "", 7)
		setText(pdf, cInk50)
		pdf.CellFormat(0, 4, tr("Généré le "+generated.Format("02/01/2006 15:04")), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 4, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	setText(pdf, cInk)
	pdf.CellFormat(0, 9, tr("Emploi du temps - "+title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, cInk50)
	period := r.Start.Format("02/01/2006")
	if !sameDay(r.Start, r.End) {
		period = "Du " + period + " au " + r.End.Format("02/01/2006")
	}
	pdf.CellFormat(0, 5, tr(period), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(entries) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		setText(pdf, cInk50)
		pdf.CellFormat(0, 8, tr("Aucun cours sur la période."), "", 1, "L", false, 0, "")
		return pdf.Output(w)
	}

	var day time.Time
	for i, e := range entries {
		if i == 0 || !sameDay(e.Start, day) {
			day = e.Start
			ensureSheetSpace(pdf, 3*sheetRowH)
			if i > 0 {
				pdf.Ln(3)
			}
			pdf.SetFont("Helvetica", "B", 10)
			setText(pdf, cHead)
			pdf.CellFormat(0, 7, tr(weekday[day.Weekday()]+" "+day.Format("02/01")), "", 1, "L", false, 0, "")
			tableHeader(pdf, tr)
		} else if ensureSheetSpace(pdf, sheetRowH) {
			tableHeader(pdf, tr)
		}

		fill := i%2 == 1
		setFill(pdf, cBand)
		setText(pdf, cInk)
		pdf.SetFont("Helvetica", "", 8.5)
		cells := []string{
			e.Start.Format("15:04") + " - " + e.End.Format("15:04"),
			e.Matiere, e.Prof, e.Salle, e.Classe,
		}
		for j, c := range sheetColumns {
			pdf.CellFormat(c.width, sheetRowH, fitText(pdf, tr, cells[j], c.width-2), "B", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

func tableHeader(pdf *gofpdf.Fpdf, tr func(string) string) {
	setFill(pdf, cHead)
	setText(pdf, cWhite)
	setDraw(pdf, cRule)
	pdf.SetFont("Helvetica", "B", 8)
	for _, c := range sheetColumns {
		pdf.CellFormat(c.width, 6, tr(c.label), "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

// ensureSheetSpace adds a page when needed mm do not fit; it reports
// whether a page was added.
func ensureSheetSpace(pdf *gofpdf.Fpdf, needed float64) bool {
	if pdf.GetY()+needed <= sheetPageH-25 {
		return false
	}
	pdf.AddPage()
	return true
}

// fitText translates s and truncates it to width.
func fitText(pdf *gofpdf.Fpdf, tr func(string) string, s string, width float64) string {
	if pdf.GetStringWidth(tr(s)) <= width {
		return tr(s)
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(tr(string(r)+"...")) > width {
		r = r[:len(r)-1]
	}
	return tr(string(r) + "...")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
