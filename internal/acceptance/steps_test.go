package acceptance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cucumber/godog"

	"recordstore/internal/api"
	"recordstore/logging"
	"recordstore/recordstore"
)

// scenarioContext is the per-scenario state shared by the step bindings.
type scenarioContext struct {
	dir     string
	logger  *logging.MockLogger
	manager *recordstore.Manager
	server  *httptest.Server

	status int
	body   []byte
}

type StepBindings struct {
	Sctx *scenarioContext
}

func (b *StepBindings) startStore(connect bool) error {
	dir, err := os.MkdirTemp("", "recordstore-acceptance-")
	if err != nil {
		return err
	}
	b.Sctx.dir = dir
	b.Sctx.logger = logging.NewMockLogger()

	mgr, err := recordstore.NewManager("bolt://"+filepath.Join(dir, "records.db"), recordstore.Options{}, b.Sctx.logger)
	if err != nil {
		return err
	}
	if connect {
		if err := mgr.Connect(context.Background()); err != nil {
			return err
		}
	}
	b.Sctx.manager = mgr
	b.Sctx.server = httptest.NewServer(api.NewHandler(b.Sctx.logger, mgr).Routes())
	return nil
}

func (b *StepBindings) AConnectedRecordStore() error {
	return b.startStore(true)
}

func (b *StepBindings) ARecordStoreThatIsNotConnected() error {
	return b.startStore(false)
}

func (b *StepBindings) TheRecordExistsWithData(id string, data float64) error {
	_, err := b.Sctx.manager.Store().Write(context.Background(), id, data)
	return err
}

func (b *StepBindings) send(method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, b.Sctx.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set(api.HeaderContentType, api.ContentTypeJSON)
	}

	resp, err := b.Sctx.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b.Sctx.status = resp.StatusCode
	b.Sctx.body, err = io.ReadAll(resp.Body)
	return err
}

func (b *StepBindings) ISend(method, path string) error {
	return b.send(method, path, nil)
}

func (b *StepBindings) ISendWithBody(method, path string, doc *godog.DocString) error {
	return b.send(method, path, []byte(doc.Content))
}

func (b *StepBindings) ISendWithJSON(method, path, body string) error {
	return b.send(method, path, []byte(body))
}

func (b *StepBindings) TheResponseStatusShouldBe(status int) error {
	if b.Sctx.status != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, b.Sctx.status, b.Sctx.body)
	}
	return nil
}

func (b *StepBindings) TheResponseErrorShouldMention(text string) error {
	var resp api.ErrorResponse
	if err := sonic.Unmarshal(b.Sctx.body, &resp); err != nil {
		return err
	}
	if !strings.Contains(resp.Details, text) && !strings.Contains(resp.Error, text) {
		return fmt.Errorf("expected error mentioning %q, got %+v", text, resp)
	}
	return nil
}

func (b *StepBindings) TheResponseShouldListRecords(n int) error {
	var resp struct {
		Data []recordstore.Record `json:"data"`
	}
	if err := sonic.Unmarshal(b.Sctx.body, &resp); err != nil {
		return err
	}
	if resp.Data == nil {
		return fmt.Errorf("expected a JSON array, got %s", b.Sctx.body)
	}
	if len(resp.Data) != n {
		return fmt.Errorf("expected %d records, got %d", n, len(resp.Data))
	}
	return nil
}

func (b *StepBindings) TheRecordShouldHaveData(id string, data float64) error {
	rec, err := b.Sctx.manager.Store().Read(context.Background(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %q not found", id)
	}
	if rec.Data != data {
		return fmt.Errorf("record %q has data %v, want %v", id, rec.Data, data)
	}
	return nil
}

func (b *StepBindings) TheRecordShouldNotExist(id string) error {
	rec, err := b.Sctx.manager.Store().Read(context.Background(), id)
	if err != nil {
		return err
	}
	if rec != nil {
		return fmt.Errorf("record %q still exists with data %v", id, rec.Data)
	}
	return nil
}

func (b *StepBindings) TheStoreShouldHoldRecords(n int) error {
	count, err := b.Sctx.manager.Store().Count(context.Background())
	if err != nil {
		return err
	}
	if count != int64(n) {
		return fmt.Errorf("expected %d records, store holds %d", n, count)
	}
	return nil
}

func (b *StepBindings) cleanup() {
	if b.Sctx.server != nil {
		b.Sctx.server.Close()
	}
	if b.Sctx.manager != nil {
		_ = b.Sctx.manager.Close(context.Background())
	}
	if b.Sctx.dir != "" {
		_ = os.RemoveAll(b.Sctx.dir)
	}
}

// InitializeScenario registers the step bindings with fresh state for each scenario.
func InitializeScenario(ctx *godog.ScenarioContext) {
	bindings := &StepBindings{Sctx: &scenarioContext{}}

	ctx.Step(`^a connected record store$`, bindings.AConnectedRecordStore)
	ctx.Step(`^a record store that is not connected$`, bindings.ARecordStoreThatIsNotConnected)
	ctx.Step(`^the record "([^"]*)" exists with data (-?\d+(?:\.\d+)?)$`, bindings.TheRecordExistsWithData)

	ctx.Step(`^I (GET|DELETE) "([^"]*)"$`, bindings.ISend)
	ctx.Step(`^I (POST|PUT|PATCH) "([^"]*)" with body:$`, bindings.ISendWithBody)
	ctx.Step(`^I (POST|PUT|PATCH) "([^"]*)" with JSON '([^']*)'$`, bindings.ISendWithJSON)

	ctx.Step(`^the response status should be (\d+)$`, bindings.TheResponseStatusShouldBe)
	ctx.Step(`^the response error should mention "(.*)"$`, bindings.TheResponseErrorShouldMention)
	ctx.Step(`^the response should list (\d+) records?$`, bindings.TheResponseShouldListRecords)
	ctx.Step(`^the record "([^"]*)" should have data (-?\d+(?:\.\d+)?)$`, bindings.TheRecordShouldHaveData)
	ctx.Step(`^the record "([^"]*)" should not exist$`, bindings.TheRecordShouldNotExist)
	ctx.Step(`^the store should hold (\d+) records?$`, bindings.TheStoreShouldHoldRecords)

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		bindings.cleanup()
		return ctx, nil
	})
}
