package render

import (
	"alcyxob/plan-delivery/internal/domain"
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth   = 210.0
	marginSide  = 15.0
	bannerMM    = pageWidth * bannerHeight / bannerWidth
	contentWide = pageWidth - 2*marginSide
)

// BuildPDF lays out the plan document. The output depends only on the plan
// version and branding: creation dates come from the version and catalogs
// are sorted.
func BuildPDF(req Request) ([]byte, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	branding := req.Branding.WithDefaults()
	primary, err := ParseHexColor(branding.PrimaryColor)
	if err != nil {
		return nil, &Error{Op: "layout", Err: err}
	}
	banner, err := Banner(branding, req.Plan.Name)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(req.Version.CreatedAt.UTC())
	pdf.SetModificationDate(req.Version.CreatedAt.UTC())
	pdf.SetTitle(req.Plan.Name, true)
	pdf.SetAuthor(branding.CompanyName, true)
	pdf.SetCreator(branding.CompanyName, true)
	pdf.SetMargins(marginSide, bannerMM+10, marginSide)
	pdf.SetAutoPageBreak(true, 20)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	bannerOpts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("banner", bannerOpts, bytes.NewReader(banner))

	pdf.SetHeaderFunc(func() {
		pdf.ImageOptions("banner", 0, 0, pageWidth, bannerMM, false, bannerOpts, 0, "")
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		footer := fmt.Sprintf("%s - %s v%d - page %d", branding.CompanyName, req.Plan.Name, req.Version.Version, pdf.PageNo())
		pdf.CellFormat(0, 10, tr(footer), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	content := req.Version.Content
	heading := func(text string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetTextColor(int(primary.R), int(primary.G), int(primary.B))
		pdf.CellFormat(contentWide, 8, tr(text), "B", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetTextColor(30, 30, 30)
	}
	body := func(text string) {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(contentWide, 5.5, tr(text), "", "L", false)
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(contentWide, 10, tr(req.Plan.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(contentWide, 6, tr(summaryLine(req.Plan, req.Version)), "", 1, "L", false, 0, "")
	pdf.SetTextColor(30, 30, 30)

	if content.Description != "" {
		heading("Overview")
		body(content.Description)
	}

	if len(content.Workouts) > 0 {
		heading("Training")
		for _, w := range content.Workouts {
			writeWorkout(pdf, tr, w, primary.R, primary.G, primary.B)
		}
	}

	if len(content.Meals) > 0 || content.DailyCalories > 0 || content.Macros != nil {
		heading("Nutrition")
		if content.DailyCalories > 0 {
			body(fmt.Sprintf("Daily target: %d kcal", content.DailyCalories))
		}
		if m := content.Macros; m != nil {
			body(fmt.Sprintf("Protein %dg - Carbs %dg - Fat %dg", m.ProteinG, m.CarbsG, m.FatG))
		}
		for _, meal := range content.Meals {
			writeMeal(pdf, tr, meal)
		}
	}

	if content.Notes != "" {
		heading("Coach notes")
		body(content.Notes)
	}

	if pdf.Err() {
		return nil, &Error{Op: "layout", Err: pdf.Error()}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

func summaryLine(plan *domain.Plan, v *domain.PlanVersion) string {
	label, ok := planTypeLabels[plan.PlanType]
	if !ok {
		label = "Plan"
	}
	parts := []string{label}
	if v.Content.DurationWeeks > 0 {
		parts = append(parts, fmt.Sprintf("%d weeks", v.Content.DurationWeeks))
	}
	if v.Content.WorkoutsPerWeek > 0 {
		parts = append(parts, fmt.Sprintf("%d sessions/week", v.Content.WorkoutsPerWeek))
	}
	parts = append(parts, fmt.Sprintf("version %d", v.Version))
	return strings.Join(parts, " | ")
}

func writeWorkout(pdf *fpdf.Fpdf, tr func(string) string, w domain.PlanWorkout, r, g, b uint8) {
	title := w.Name
	if w.DayOfWeek >= 1 && w.DayOfWeek <= 7 {
		title = fmt.Sprintf("%s - %s", weekdays[w.DayOfWeek-1], w.Name)
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentWide, 7, tr(title), "", 1, "L", false, 0, "")

	if len(w.Exercises) == 0 {
		return
	}
	cols := []struct {
		title string
		width float64
	}{
		{"Exercise", contentWide * 0.40},
		{"Sets", contentWide * 0.10},
		{"Reps", contentWide * 0.15},
		{"Rest", contentWide * 0.15},
		{"Notes", contentWide * 0.20},
	}
	pdf.SetFillColor(int(r), int(g), int(b))
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	for _, c := range cols {
		pdf.CellFormat(c.width, 6, c.title, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(30, 30, 30)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetFillColor(244, 246, 245)
	for i, ex := range w.Exercises {
		sets := ""
		if ex.Sets > 0 {
			sets = fmt.Sprintf("%d", ex.Sets)
		}
		fill := i%2 == 1
		cells := []string{ex.Name, sets, ex.Reps, ex.Rest, ex.Notes}
		for j, c := range cols {
			pdf.CellFormat(c.width, 6, tr(truncate(cells[j], 48)), "", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)
}

func writeMeal(pdf *fpdf.Fpdf, tr func(string) string, meal domain.PlanMeal) {
	title := meal.Name
	if meal.Time != "" {
		title = fmt.Sprintf("%s (%s)", meal.Name, meal.Time)
	}
	if meal.Calories > 0 {
		title = fmt.Sprintf("%s - %d kcal", title, meal.Calories)
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentWide, 6, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range meal.Items {
		pdf.CellFormat(5, 5, "", "", 0, "L", false, 0, "")
		pdf.MultiCell(contentWide-5, 5, tr("- "+item), "", "L", false)
	}
	pdf.Ln(2)
}

var planTypeLabels = map[domain.PlanType]string{
	domain.PlanTraining:  "Training plan",
	domain.PlanNutrition: "Nutrition plan",
	domain.PlanBundle:    "Training + nutrition plan",
}

var weekdays = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "..."
}
