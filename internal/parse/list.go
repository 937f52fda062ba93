package parse

import (
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"studio-sync-backend/internal/model"
)

// The list page is a plain server-rendered board table. Selectors live here
// so that portal layout drift only touches this file.
const (
	totalCountSelector = "p.total span"
	listRowSelector    = "table.board-list tbody tr"
)

// Column layout of one list row. Rows shorter than minListCells are skipped.
const (
	colRowNumber = iota
	colFacility
	colParticipants
	colRentalDate
	colTimeSlots
	colApplicant
	colOrganization
	colPhone
	colStatus
	colCancelDate
	colSpecialNote
	colCreatedAt

	minListCells = colCreatedAt + 1
)

const dateLayout = "2006-01-02"

var digitsRe = regexp.MustCompile(`\d+`)

// TotalCount extracts the total record count from a list page.
func TotalCount(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("failed to parse list document: %w", err)
	}

	text := strings.TrimSpace(doc.Find(totalCountSelector).First().Text())
	m := digitsRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, fmt.Errorf("total count marker not found")
	}
	return strconv.Atoi(m)
}

// BookingList extracts the booking rows of one list page. Malformed rows are
// skipped and counted, never fatal; unknown status labels fall back to the
// pending status and are counted separately.
func BookingList(html string) ([]BookingRecord, ListStats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ListStats{}, fmt.Errorf("failed to parse list document: %w", err)
	}

	var records []BookingRecord
	var stats ListStats

	doc.Find(listRowSelector).Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minListCells {
			stats.SkippedRows++
			log.Printf("parse: skipping list row %d with %d cells (want %d)", i, cells.Length(), minListCells)
			return
		}

		cellText := func(col int) string {
			return strings.TrimSpace(cells.Eq(col).Text())
		}

		rentalDate, err := time.Parse(dateLayout, cellText(colRentalDate))
		if err != nil {
			stats.SkippedRows++
			log.Printf("parse: skipping list row %d with bad rental date %q", i, cellText(colRentalDate))
			return
		}

		status, known := model.StatusFromLabel(cellText(colStatus))
		if !known {
			stats.UnknownStatusLabels++
			log.Printf("parse: unknown status label %q in list row %d, defaulting to %s", cellText(colStatus), i, status)
		}

		rec := BookingRecord{
			ExternalID:    externalIDFromCell(cells.Eq(colFacility)),
			FacilityName:  cellText(colFacility),
			RentalDate:    rentalDate,
			TimeSlots:     TimeSlots(cellText(colTimeSlots)),
			ApplicantName: cellText(colApplicant),
			Organization:  cellText(colOrganization),
			Phone:         cellText(colPhone),
			Status:        status,
			SpecialNote:   cellText(colSpecialNote),
		}
		rec.RowNumber, _ = strconv.Atoi(cellText(colRowNumber))
		rec.ParticipantsCount, _ = strconv.Atoi(digitsRe.FindString(cellText(colParticipants)))
		rec.CancelDate = parseOptionalDate(cellText(colCancelDate))
		rec.CreatedAt = parseOptionalDate(cellText(colCreatedAt))

		records = append(records, rec)
	})

	return records, stats, nil
}

// externalIDFromCell pulls the reservation id out of the facility cell's
// detail link, e.g. <a href="view.do?reservationId=RSV-1024">.
func externalIDFromCell(cell *goquery.Selection) string {
	href, ok := cell.Find("a").First().Attr("href")
	if !ok {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("reservationId")
}

func parseOptionalDate(s string) *time.Time {
	if s == "" || s == "-" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
