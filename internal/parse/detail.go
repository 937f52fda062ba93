package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The detail page renders labeled field blocks as a th/td table.
const detailFieldSelector = "table.view tr"

// BookingDetail parses a detail page on top of the list record it belongs to.
// Missing or unrecognized field blocks are left at their zero value; the
// detail page shares the list page's tolerance for layout noise.
func ParseBookingDetail(html string, base BookingRecord) (BookingDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return BookingDetail{}, fmt.Errorf("failed to parse detail document: %w", err)
	}

	detail := BookingDetail{BookingRecord: base}

	doc.Find(detailFieldSelector).Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if label == "" {
			return
		}

		switch label {
		case "신청일":
			detail.ApplicationDate = parseOptionalDate(value)
		case "성명":
			detail.FullName = value
		case "연락처":
			detail.FullPhone = value
		case "이메일":
			detail.Email = value
		case "회사 연락처":
			detail.CompanyPhone = value
		case "사용 목적":
			detail.Purpose = value
		case "이용자 구분":
			detail.UserType = value
		case "할인율":
			detail.DiscountRate, _ = strconv.Atoi(digitsRe.FindString(value))
		case "대관료":
			detail.RentalFee, _ = strconv.Atoi(digitsRe.FindString(strings.ReplaceAll(value, ",", "")))
		case "입금 계좌":
			detail.BankAccount = value
		case "노쇼 여부":
			detail.HasNoShow = value == "Y" || value == "예"
		case "노쇼 메모":
			detail.NoShowMemo = value
		}
	})

	return detail, nil
}
