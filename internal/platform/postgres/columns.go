package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/cronq/internal/domain"
)

// CronTaskTable is the fixed logical name of the task table.
const CronTaskTable = "cron_task"

// cronTaskColumns is the ordered column list of the cron_task table. Every
// statement below and cronTaskValues are built from it, and the names match
// the db tags on domain.CronTask.
var cronTaskColumns = []string{
	"id",
	"created_on",
	"updated_on",
	"expected_by",
	"task_id",
	"payload",
	"status",
}

// cronTaskValues returns the insert arguments for t in cronTaskColumns order.
func cronTaskValues(t *domain.CronTask) []any {
	return []any{
		t.ID,
		t.CreatedOn,
		t.UpdatedOn,
		t.ExpectedBy,
		t.TaskID,
		t.Payload,
		t.Status,
	}
}

// cronTaskStatements holds the SQL for one schema, built once per store.
type cronTaskStatements struct {
	insert            string
	selectByID        string
	selectDue         string
	selectDueByStatus string
	updateStatus      string
	claim             string
	claimDue          string
}

func newCronTaskStatements(schema string) cronTaskStatements {
	table := pgx.Identifier{schema, CronTaskTable}.Sanitize()

	quoted := make([]string, len(cronTaskColumns))
	placeholders := make([]string, len(cronTaskColumns))
	for i, col := range cronTaskColumns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	columns := strings.Join(quoted, ", ")
	dueOrder := "ORDER BY expected_by, created_on"

	return cronTaskStatements{
		insert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
			table, columns, strings.Join(placeholders, ", "),
		),
		selectByID: fmt.Sprintf(
			"SELECT %s FROM %s WHERE id = $1",
			columns, table,
		),
		selectDue: fmt.Sprintf(
			"SELECT %s FROM %s WHERE expected_by <= $1 %s",
			columns, table, dueOrder,
		),
		selectDueByStatus: fmt.Sprintf(
			"SELECT %s FROM %s WHERE expected_by <= $1 AND status = $2 %s",
			columns, table, dueOrder,
		),
		updateStatus: fmt.Sprintf(
			"UPDATE %s SET status = $1, updated_on = $2 WHERE id = $3",
			table,
		),
		claim: fmt.Sprintf(
			"UPDATE %s SET status = $1, updated_on = $2 WHERE id = $3 AND status = $4 RETURNING %s",
			table, columns,
		),
		claimDue: fmt.Sprintf(
			`UPDATE %[1]s SET status = $1, updated_on = $2
			WHERE id IN (
				SELECT id FROM %[1]s
				WHERE expected_by <= $3 AND status = $4
				%[3]s
				LIMIT $5
				FOR UPDATE SKIP LOCKED
			)
			RETURNING %[2]s`,
			table, columns, dueOrder,
		),
	}
}
