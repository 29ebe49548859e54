// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Postgres{db: sqlx.NewDb(db, "pgx")}, mock
}

func TestPostgresLoadFleetOrdersBySortOrder(t *testing.T) {
	pg, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{
		"name", "type", "role", "status", "virt_uri", "virt_domain", "idle_snapshot",
		"hostname", "child_pid", "child_deadline", "errors", "sort_order",
	}).AddRow("win64-1", "win64", "base", "idle", "qemu:///system", "win64-1", "clean",
		"host-a", nil, nil, 0, 1)
	mock.ExpectQuery(`SELECT name, type, role, status.*ORDER BY sort_order`).WillReturnRows(rows)

	vms, err := pg.LoadFleet(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 1)
	require.Equal(t, "win64-1", vms[0].Name)
	require.Equal(t, api.StatusIdle, vms[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxRollsBackOnError(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := require.Error
	err := pg.WithTx(context.Background(), func(tx Tx) error {
		return context.DeadlineExceeded
	})
	wantErr(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxCommitsOnSuccess(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO vms`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pg.WithTx(context.Background(), func(tx Tx) error {
		return tx.SaveVM(context.Background(), api.VM{
			Name: "win64-1", Type: api.VMTypeWin64, Role: api.RoleBase,
			Status: api.StatusOff, VirtURI: "qemu:///system", VirtDomain: "win64-1",
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadRecordGroupsOrdersByTimestampThenID(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()

	now := time.Unix(1700000000, 0).UTC()
	groupRows := sqlmock.NewRows([]string{"id", "timestamp"}).
		AddRow(1, now).
		AddRow(2, now.Add(time.Second))
	mock.ExpectQuery(`SELECT id, timestamp FROM record_groups.*ORDER BY timestamp, id`).WillReturnRows(groupRows)

	recRows1 := sqlmock.NewRows([]string{"group_id", "seq", "type", "name", "value"}).
		AddRow(1, 0, "engine", "pass_started", nil)
	mock.ExpectQuery(`SELECT group_id, seq, type, name, value FROM records`).WillReturnRows(recRows1)

	recRows2 := sqlmock.NewRows([]string{"group_id", "seq", "type", "name", "value"})
	mock.ExpectQuery(`SELECT group_id, seq, type, name, value FROM records`).WillReturnRows(recRows2)

	mock.ExpectCommit()

	var groups []api.RecordGroup
	err := pg.WithTx(context.Background(), func(tx Tx) error {
		var err error
		groups, err = tx.LoadRecordGroups(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
		return err
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, int64(1), groups[0].ID)
	require.Len(t, groups[0].Records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
