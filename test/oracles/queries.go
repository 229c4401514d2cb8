package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns rows only when an invariant is broken.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_worker_single_task",
			SQL: `SELECT assigned_to, COUNT(*) FROM requests
                  WHERE status = 'in_progress'
                  GROUP BY assigned_to HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_in_progress_has_assignee",
			SQL:  `SELECT id FROM requests WHERE status = 'in_progress' AND assigned_to IS NULL`,
		},
		{
			Name: "O3_busy_iff_working",
			SQL: `SELECT s.id, s.status FROM staff s
                  LEFT JOIN requests r ON r.assigned_to = s.id AND r.status = 'in_progress'
                  WHERE (s.status = 'busy' AND r.id IS NULL)
                     OR (s.status = 'free' AND r.id IS NOT NULL)`,
		},
		{
			Name: "O4_task_type_match",
			SQL: `SELECT r.id FROM requests r
                  JOIN staff s ON s.id = r.assigned_to
                  WHERE r.status = 'in_progress' AND r.task_type <> s.task_type`,
		},
		{
			Name: "O5_hostel_gender_rule",
			SQL: `SELECT r.id, r.building, s.gender FROM requests r
                  JOIN staff s ON s.id = r.assigned_to
                  WHERE (r.building IN ('boys_hostel_old', 'boys_hostel_h1', 'boys_hostel_h2') AND s.gender <> 'M')
                     OR (r.building = 'girls_hostel' AND s.gender <> 'F')`,
		},
		{
			Name: "O6_worker_at_task",
			SQL: `SELECT r.id FROM requests r
                  JOIN staff s ON s.id = r.assigned_to
                  WHERE r.status = 'in_progress'
                    AND (s.current_building <> r.building OR s.current_location_floor <> r.location_floor)`,
		},
		{
			Name: "O7_outbox_drained",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
