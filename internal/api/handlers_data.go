package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"continuouscare/internal/models"
)

// maxQueryWindow caps how much history a single data query may span.
const maxQueryWindow = 40 * 24 * time.Hour

var queryableCategories = map[string]models.Category{
	"environment":    models.CategoryEnvironment,
	"healthstatus":   models.CategoryHealthStatus,
	"sleep":          models.CategorySleep,
	"event":          models.CategoryEvent,
	"personalstatus": models.CategoryPersonalStatus,
	"path":           models.CategoryPath,
}

func (h *Handler) GetData(c *gin.Context) {
	user, role := sessionUser(c)

	name := c.Param("category")
	category, known := queryableCategories[strings.ToLower(name)]
	if !known {
		badRequest(c, "Argument errors : unknown category "+name)
		return
	}

	start, okStart := unixParam(c, "start")
	end, okEnd := unixParam(c, "end")
	if !okStart || !okEnd {
		badRequest(c, `Argument errors : "start" and "end" must be unix timestamps`)
		return
	}

	var interval time.Duration
	if raw := c.Query("interval"); raw != "" {
		parsed, err := parseInterval(raw)
		if err != nil {
			badRequest(c, "Argument errors : "+err.Error())
			return
		}
		interval = parsed
	}

	start, end, err := resolveWindow(start, end, interval, time.Now())
	if err != nil {
		logical(c, err.Error())
		return
	}

	var records []models.Record
	if role == models.RoleMedic {
		if category == models.CategoryPath {
			forbidden(c, "Path data is only accessible to patients")
			return
		}
		patient := c.Query("patient")
		if patient == "" {
			badRequest(c, `Argument errors : "patient" is mandatory for medics`)
			return
		}
		records, err = h.proc.DataForMedic(c.Request.Context(), user, patient, category, start, end)
	} else {
		records, err = h.proc.Data(c.Request.Context(), user, category, start, end)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, records)
}

// Download serves the anonymized research export. No token required: the
// data carries no identities.
func (h *Handler) Download(c *gin.Context) {
	userCount, err := strconv.Atoi(c.Query("userCount"))
	if err != nil || userCount <= 0 {
		badRequest(c, `Argument errors : "userCount" must be a positive integer`)
		return
	}

	export, err := h.proc.Download(c.Request.Context(), userCount)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, export)
}

// unixParam reads an optional unix-seconds query parameter; absence means
// an open bound and parses as zero.
func unixParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseInterval reads the duration shorthand of the data API: a positive
// integer with an s, m, h, d, or w suffix.
func parseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("malformed interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed interval %q", s)
	}
	units := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}
	unit, ok := units[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("malformed interval %q", s)
	}
	return time.Duration(n) * unit, nil
}

// resolveWindow turns the accepted start/end/interval combinations into a
// concrete window (unix seconds, zero end meaning now). An interval
// complements start or end but never both; an interval alone counts back
// from now. Any bounded window wider than 40 days is rejected, which also
// rules out an end with no start.
func resolveWindow(start, end int64, interval time.Duration, now time.Time) (int64, int64, error) {
	if interval > 0 {
		switch {
		case start != 0 && end != 0:
			return 0, 0, errors.New("only two of start, end and interval may be combined")
		case start != 0:
			end = start + int64(interval.Seconds())
		case end != 0:
			start = end - int64(interval.Seconds())
		default:
			start = now.Add(-interval).Unix()
		}
	}

	if start == 0 && end == 0 {
		return start, end, nil
	}
	effectiveEnd := end
	if effectiveEnd == 0 {
		effectiveEnd = now.Unix()
	}
	if effectiveEnd-start > int64(maxQueryWindow.Seconds()) {
		return 0, 0, errors.New("requested window extends 40 days")
	}
	return start, end, nil
}
