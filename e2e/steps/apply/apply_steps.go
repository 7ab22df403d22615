package apply

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, sourceAddress string) error
	POSTForm(path string, form url.Values, sourceAddress string) error
	GET(path string, headers map[string]string) error
	OPTIONS(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers registration step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &applySteps{tc: tc}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		steps.reset()
		return ctx, nil
	})

	ctx.Step(`^the registration window is open$`, steps.registrationWindowIsOpen)
	ctx.Step(`^I submit a complete registration from "([^"]*)"$`, steps.submitComplete)
	ctx.Step(`^I submitted a complete registration from "([^"]*)"$`, steps.submittedComplete)
	ctx.Step(`^I submit a complete form-encoded registration from "([^"]*)"$`, steps.submitCompleteForm)
	ctx.Step(`^I submit a registration without "([^"]*)" from "([^"]*)"$`, steps.submitWithout)
	ctx.Step(`^I submit the same registration again from "([^"]*)"$`, steps.submitSameAgain)
	ctx.Step(`^I submit a different registration from "([^"]*)"$`, steps.submitDifferent)
	ctx.Step(`^I download the record export with token "([^"]*)"$`, steps.downloadExport)
	ctx.Step(`^I send a preflight request$`, steps.sendPreflight)

	ctx.Step(`^the response should contain a record id$`, steps.responseHasRecordID)
	ctx.Step(`^the response message should be "([^"]*)"$`, steps.responseMessageShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.responseHasRetryAfter)
}

type applySteps struct {
	tc TestContext

	payload   map[string]string
	addresses map[string]string
}

func (s *applySteps) reset() {
	s.payload = newPayload()
	s.addresses = make(map[string]string)
}

// newPayload returns a registration unique to this scenario so repeated runs
// against the same server do not collide on duplicate markers.
func newPayload() map[string]string {
	n := rand.IntN(1_000_000_000)
	return map[string]string{
		"branch":      "e2e",
		"childBirth":  "2019-03-04",
		"childName":   fmt.Sprintf("E2E Child %09d", n),
		"gender":      "F",
		"parentName":  "E2E Parent",
		"relation":    "mother",
		"parentPhone": fmt.Sprintf("010-%04d-%04d", n/10000%10000, n%10000),
		"addrBase":    "Seoul",
		"addrDetail":  "1-1",
	}
}

// address maps a scenario alias to a random documentation-range address.
// "the same address" reuses the first alias seen.
func (s *applySteps) address(alias string) string {
	if alias == "the same address" {
		for _, addr := range s.addresses {
			return addr
		}
	}
	if addr, ok := s.addresses[alias]; ok {
		return addr
	}
	addr := fmt.Sprintf("198.18.%d.%d", rand.IntN(256), 1+rand.IntN(254))
	s.addresses[alias] = addr
	return addr
}

func (s *applySteps) registrationWindowIsOpen(ctx context.Context) error {
	if err := s.tc.GET("/api/apply", nil); err != nil {
		return err
	}
	before, err := s.tc.GetResponseField("beforeOpen")
	if err != nil {
		return err
	}
	if before != false {
		return fmt.Errorf("server reports beforeOpen=%v; start it with OPEN_AT in the past", before)
	}
	return nil
}

func (s *applySteps) submitComplete(ctx context.Context, alias string) error {
	return s.tc.POST("/api/apply", s.payload, s.address(alias))
}

func (s *applySteps) submittedComplete(ctx context.Context, alias string) error {
	if err := s.submitComplete(ctx, alias); err != nil {
		return err
	}
	return s.responseHasRecordID(ctx)
}

func (s *applySteps) submitCompleteForm(ctx context.Context, alias string) error {
	form := url.Values{}
	for k, v := range s.payload {
		form.Set(k, v)
	}
	return s.tc.POSTForm("/api/apply", form, s.address(alias))
}

func (s *applySteps) submitWithout(ctx context.Context, field, alias string) error {
	body := make(map[string]string, len(s.payload))
	for k, v := range s.payload {
		if k != field {
			body[k] = v
		}
	}
	return s.tc.POST("/api/apply", body, s.address(alias))
}

func (s *applySteps) submitSameAgain(ctx context.Context, alias string) error {
	return s.tc.POST("/api/apply", s.payload, s.address(alias))
}

func (s *applySteps) submitDifferent(ctx context.Context, alias string) error {
	return s.tc.POST("/api/apply", newPayload(), s.address(alias))
}

func (s *applySteps) downloadExport(ctx context.Context, token string) error {
	return s.tc.GET("/api/log.txt?token="+url.QueryEscape(token), nil)
}

func (s *applySteps) sendPreflight(ctx context.Context) error {
	return s.tc.OPTIONS("/api/apply")
}

func (s *applySteps) responseHasRecordID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	if str, ok := id.(string); !ok || str == "" {
		return fmt.Errorf("expected non-empty id, got %v", id)
	}
	return nil
}

func (s *applySteps) responseMessageShouldBe(ctx context.Context, expected string) error {
	return s.fieldShouldBe("message", expected)
}

func (s *applySteps) responseErrorShouldBe(ctx context.Context, expected string) error {
	return s.fieldShouldBe("error", expected)
}

func (s *applySteps) fieldShouldBe(field, expected string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("expected %s %q, got %v", field, expected, got)
	}
	return nil
}

func (s *applySteps) responseHasRetryAfter(ctx context.Context) error {
	if s.tc.GetLastResponseHeader("Retry-After") == "" {
		return fmt.Errorf("Retry-After header missing")
	}
	return nil
}
