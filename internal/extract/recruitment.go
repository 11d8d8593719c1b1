// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

// Assessment levels.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Job statuses.
const (
	StatusNew          = "new"
	StatusApplied      = "applied"
	StatusInterviewing = "interviewing"
	StatusOffered      = "offered"
	StatusRejected     = "rejected"
)

// Unspecified marks a job field the message did not state.
const Unspecified = "unspecified"

// communicationTypes is checked in order; the first match wins.
var communicationTypes = []namedPattern{
	named(models.CommOffer, `offer letter|pleased to offer|extend (?:you )?an offer|offer of employment`),
	named(models.CommRejection, `unfortunately|not (?:be )?moving forward|other candidates|decided to pursue|not selected|position has been filled`),
	named(models.CommInterviewInvitation, `interview(?:s|ing)?`),
	named(models.CommConfirmation, `received your application|thank you for applying|application (?:has been )?(?:received|submitted)|confirm(?:ing|ation)? (?:of )?your application`),
	named(models.CommFollowUp, `following up|follow(?:ing)?[- ]up|checking in|circling back|any update`),
	named(models.CommNetworking, `connect|coffee chat|networking|informational (?:chat|call)|expand (?:my|our) network`),
}

var knownSkills = []namedPattern{
	{name: "go", re: regexp.MustCompile(`\bGo\b|(?i:\bgolang\b)`)},
	named("python", `python`),
	named("java", `java`),
	named("javascript", `javascript|js`),
	named("typescript", `typescript`),
	named("rust", `rust`),
	{name: "c++", re: regexp.MustCompile(`(?i)\bc\+\+`)},
	named("kubernetes", `kubernetes|k8s`),
	named("docker", `docker`),
	named("aws", `aws|amazon web services`),
	named("gcp", `gcp|google cloud`),
	named("azure", `azure`),
	named("postgresql", `postgres(?:ql)?`),
	named("sql", `sql`),
	named("redis", `redis`),
	named("kafka", `kafka`),
	named("react", `react`),
	named("node.js", `node(?:\.js|js)?`),
	named("terraform", `terraform`),
	named("graphql", `graphql`),
	named("grpc", `grpc`),
	named("machine learning", `machine learning|ml`),
	named("linux", `linux`),
}

var (
	jobTitleRe = regexp.MustCompile(`(?i)\b(?:(?:senior|sr\.?|junior|jr\.?|lead|staff|principal|head of)\s+)?(?:(?:software|backend|back-end|frontend|front-end|full[- ]stack|data|machine learning|ml|devops|platform|site reliability|security|cloud|mobile|qa|product|project|engineering|go|golang|python|java|infrastructure)\s+){0,2}(?:engineer|developer|manager|designer|analyst|scientist|architect|consultant|specialist|intern|sre)\b`)
	companyRe  = regexp.MustCompile(`\b(?:at|with|join|from)[ \t]+([A-Z][\w&.-]*(?:[ \t]+[A-Z][\w&.-]*){0,2})`)
	jobLocRe   = regexp.MustCompile(`(?im)^\s*location\s*:\s*(.+?)\s*$|\bbased in[ \t]+([A-Z][\w.-]*(?:,?[ \t]+[A-Z][\w.-]*)?)`)
	salaryRe   = regexp.MustCompile(`(?i)[$€£]\s?\d{2,3}(?:,\d{3}|k)(?:\s*(?:-|–|to)\s*[$€£]?\s?\d{2,3}(?:,\d{3}|k))?(?:\s*(?:per year|/year|/yr|annually))?`)
	yearsRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\+?\s*(?:years|yrs)\b`)
	applyByRe  = regexp.MustCompile(`(?i)\b(?:apply|applications?(?: close)?|respond|deadline)\s+(?:by|before|is|on)?\s*(.{1,30})`)

	jobTypes = []namedPattern{
		named("internship", `intern(?:ship)?`),
		named("contract", `contract(?:or)?|freelance|c2c`),
		named("part_time", `part[- ]time`),
		named("full_time", `full[- ]time|permanent`),
	}
	workModes = []namedPattern{
		named("hybrid", `hybrid`),
		named("remote", `remote|work from home|wfh|distributed`),
		named("onsite", `on[- ]?site|in[- ]office|in person`),
	}
	levelWords = []namedPattern{
		named("principal", `principal|distinguished`),
		named("staff", `staff`),
		named("lead", `lead|head of`),
		named("senior", `senior|sr\.?`),
		named("entry", `junior|jr\.?|entry[- ]level|graduate|new grad|intern`),
	}
	sourceTypes = []namedPattern{
		named("linkedin", `linkedin`),
		named("job_board", `indeed|glassdoor|job alert|ziprecruiter|monster|angellist|wellfound`),
		named("referral", `referr(?:ed|al)|recommended you`),
		named("recruiter", `recruit(?:er|ing|ment)|talent acquisition|headhunter|staffing`),
	}
	applyLinkRe = regexp.MustCompile(`(?i)https?://[^\s<>"')]*(?:apply|careers|jobs|greenhouse|lever\.co|workday|smartrecruiters|ashbyhq)[^\s<>"')]*`)
	legitRiskRe = regexp.MustCompile(`(?i)\b(?:upfront fee|pay for (?:training|equipment)|processing fee|wire transfer|no experience needed|earn \$\d+ (?:a|per) day|whatsapp|telegram)\b`)
)

var freemail = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true,
	"aol.com": true, "icloud.com": true, "proton.me": true, "protonmail.com": true,
}

// RecruitmentExtractor parses job opportunities and recruiting conversations.
type RecruitmentExtractor struct {
	clock Clock
}

// NewRecruitmentExtractor creates a recruitment extractor.
func NewRecruitmentExtractor(clock Clock) *RecruitmentExtractor {
	return &RecruitmentExtractor{clock: clock}
}

func (e *RecruitmentExtractor) Category() models.Category { return models.CategoryRecruiting }

func (e *RecruitmentExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		return models.NotFound(models.CategoryRecruiting), nil
	}
	ref := referenceTime(msg, e.clock)

	job := models.JobOpportunity{
		MessageID:         msg.ID,
		Title:             jobTitle(msg),
		Company:           company(msg),
		Location:          jobLocation(text),
		JobType:           firstOr(jobTypes, text, Unspecified),
		WorkMode:          firstOr(workModes, text, Unspecified),
		SalaryRange:       strings.TrimSpace(salaryRe.FindString(text)),
		ExperienceLevel:   experienceLevel(text),
		Skills:            nonNil(matchTable(knownSkills, text)),
		SourceType:        firstOr(sourceTypes, text+" "+msg.Sender.Address, "direct"),
		RecruiterName:     msg.Sender.Name,
		RecruiterEmail:    strings.ToLower(msg.Sender.Address),
		ApplicationLink:   applyLinkRe.FindString(text),
		CommunicationType: firstOr(communicationTypes, text, models.CommNewOpportunity),
	}

	if m := applyByRe.FindStringSubmatch(text); m != nil {
		if d, ok := findDate(m[1], ref); ok {
			dl := d.Add(deadlineHour * time.Hour)
			job.Deadline = &dl
		}
	}

	job.Relevance = relevance(job)
	job.Quality = quality(job)
	job.Legitimacy = legitimacy(job, text)
	job.Interest = interest(job)
	job.Status = statusFor(job.CommunicationType)

	return models.Extraction{Category: models.CategoryRecruiting, Jobs: []models.JobOpportunity{job}}, nil
}

func jobTitle(msg models.Message) string {
	if m := jobTitleRe.FindString(msg.Subject); m != "" {
		return titleCase(m)
	}
	if m := jobTitleRe.FindString(msg.Body); m != "" {
		return titleCase(m)
	}
	if s := cleanSubject(msg.Subject); s != "" {
		return clip(s, 120)
	}
	return "Unknown role"
}

func company(msg models.Message) string {
	for _, m := range companyRe.FindAllStringSubmatch(msg.Text(), -1) {
		name := strings.TrimRight(m[1], ".")
		if notPlaceRe.MatchString(name) {
			continue
		}
		return name
	}
	// Fall back to the sender's domain when it is not a mailbox provider.
	if i := strings.LastIndexByte(msg.Sender.Address, '@'); i >= 0 {
		domain := strings.ToLower(msg.Sender.Address[i+1:])
		if !freemail[domain] {
			label := domain
			if j := strings.IndexByte(label, '.'); j > 0 {
				label = label[:j]
			}
			return titleCase(label)
		}
	}
	return ""
}

func jobLocation(text string) string {
	m := jobLocRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func experienceLevel(text string) string {
	if lvl := firstOr(levelWords, text, ""); lvl != "" {
		return lvl
	}
	if m := yearsRe.FindStringSubmatch(text); m != nil {
		years, _ := strconv.Atoi(m[1])
		switch {
		case years >= 8:
			return "lead"
		case years >= 5:
			return "senior"
		case years >= 2:
			return "mid"
		default:
			return "entry"
		}
	}
	return Unspecified
}

func relevance(j models.JobOpportunity) string {
	switch {
	case len(j.Skills) >= 3:
		return LevelHigh
	case len(j.Skills) >= 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

func quality(j models.JobOpportunity) string {
	filled := 0
	for _, f := range []string{j.Company, j.Location, j.SalaryRange, j.ApplicationLink} {
		if f != "" {
			filled++
		}
	}
	if j.JobType != Unspecified {
		filled++
	}
	if j.WorkMode != Unspecified {
		filled++
	}
	switch {
	case filled >= 4:
		return LevelHigh
	case filled >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}

func legitimacy(j models.JobOpportunity, text string) string {
	if legitRiskRe.MatchString(text) {
		return LevelLow
	}
	domain := ""
	if i := strings.LastIndexByte(j.RecruiterEmail, '@'); i >= 0 {
		domain = j.RecruiterEmail[i+1:]
	}
	switch {
	case j.Company != "" && domain != "" && !freemail[domain]:
		return LevelHigh
	case j.Company == "" && freemail[domain]:
		return LevelLow
	default:
		return LevelMedium
	}
}

func interest(j models.JobOpportunity) string {
	switch j.CommunicationType {
	case models.CommOffer, models.CommInterviewInvitation:
		return LevelHigh
	case models.CommRejection:
		return LevelLow
	}
	if j.Relevance == LevelHigh {
		return LevelHigh
	}
	if j.Relevance == LevelMedium || j.Quality == LevelHigh {
		return LevelMedium
	}
	return LevelLow
}

func statusFor(comm string) string {
	switch comm {
	case models.CommOffer:
		return StatusOffered
	case models.CommRejection:
		return StatusRejected
	case models.CommInterviewInvitation:
		return StatusInterviewing
	case models.CommConfirmation:
		return StatusApplied
	default:
		return StatusNew
	}
}

func firstOr(table []namedPattern, text, fallback string) string {
	for _, p := range table {
		if p.re.MatchString(text) {
			return p.name
		}
	}
	return fallback
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		switch w {
		case "qa", "ml", "sre":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
