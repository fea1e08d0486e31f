package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/laboro/internal/models"
)

var (
	jobIDPattern    = regexp.MustCompile(`/jobs?/(\d+)`)
	paymentPattern  = regexp.MustCompile(`[¥￥]?\s*([\d,]+)\s*円?`)
	daysAgoPattern  = regexp.MustCompile(`(\d+)日前`)
	hoursAgoPattern = regexp.MustCompile(`(\d+)時間前`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// parseListingPage extracts job listings from a search results page.
// The platform markup is not stable, so card and field lookups fall
// through a chain of selectors the way the page has historically
// rendered them.
func parseListingPage(doc *goquery.Document, baseURL string) []*models.JobListing {
	cards := doc.Find("div.job-card, article.job-card, div[data-job-id]")
	if cards.Length() == 0 {
		cards = doc.Find("div.list-item, div.job-list-item")
	}

	listings := make([]*models.JobListing, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		if listing := parseJobCard(card, baseURL); listing != nil {
			listings = append(listings, listing)
		}
	})
	return listings
}

// parseJobCard extracts one listing from a card element. Cards missing
// both a title and a URL are dropped.
func parseJobCard(card *goquery.Selection, baseURL string) *models.JobListing {
	listing := &models.JobListing{}

	title := card.Find("h2.job-title, h3.job-title, h4.job-title").First()
	if title.Length() == 0 {
		title = card.Find("h2, h3, h4").First()
	}
	if title.Length() > 0 {
		listing.Title = cleanText(title.Text())
		if href, ok := title.Find("a").First().Attr("href"); ok {
			listing.URL = resolveURL(baseURL, href)
		}
	}
	if listing.URL == "" {
		if href, ok := card.Find("a[href]").First().Attr("href"); ok {
			listing.URL = resolveURL(baseURL, href)
		}
	}

	listing.Company = cleanText(card.Find(".company-name, .company, .employer").First().Text())
	listing.Category = cleanText(card.Find(".category, .job-type, .badge, .label").First().Text())

	if payment := card.Find(".salary, .payment, .price, .amount").First().Text(); payment != "" {
		listing.Payment = parsePayment(payment)
	}

	if posted := card.Find(".posted-date, .date, time").First().Text(); posted != "" {
		listing.PostedAt = parseRelativeDate(posted, time.Now())
	}

	if id, ok := card.Attr("data-job-id"); ok {
		listing.ID = id
	} else if m := jobIDPattern.FindStringSubmatch(listing.URL); m != nil {
		listing.ID = m[1]
	}

	card.Find(".tag, .skill").Each(func(_ int, tag *goquery.Selection) {
		if text := cleanText(tag.Text()); text != "" {
			listing.Tags = append(listing.Tags, text)
		}
	})

	if listing.Title == "" && listing.URL == "" {
		return nil
	}
	return listing
}

// parseDetailPage fills in the description-level fields from a job
// detail page.
func parseDetailPage(doc *goquery.Document, listing *models.JobListing) *models.JobListing {
	detailed := *listing

	desc := doc.Find(".job-description, .description, .detail, .content").First()
	if desc.Length() == 0 {
		desc = doc.Find("div#description, div#detail").First()
	}
	if desc.Length() > 0 {
		detailed.Description = cleanText(desc.Text())
	}

	if deadline := doc.Find(".deadline, .expire, .close-date").First().Text(); deadline != "" {
		detailed.Deadline = cleanText(deadline)
	}

	if detailed.Payment == 0 {
		if payment := doc.Find(".salary, .payment, .price").First().Text(); payment != "" {
			detailed.Payment = parsePayment(payment)
		}
	}

	return &detailed
}

// parsePayment extracts a yen amount from text like "¥5,000" or
// "5000円". Returns 0 when no amount is present.
func parsePayment(text string) float64 {
	m := paymentPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return amount
}

// parseRelativeDate handles the platform's relative timestamps
// ("2日前", "3時間前"). Unparseable text yields the zero time.
func parseRelativeDate(text string, now time.Time) time.Time {
	text = strings.TrimSpace(text)

	if m := daysAgoPattern.FindStringSubmatch(text); m != nil {
		days, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, -days)
	}
	if m := hoursAgoPattern.FindStringSubmatch(text); m != nil {
		hours, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(hours) * time.Hour)
	}

	for _, layout := range []string{"2006/01/02", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}

func cleanText(text string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
}

func resolveURL(baseURL, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}
