package dataimporter

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/gtfs"
)

// tableMapping describes how one GTFS file lands in a schedule table.
type tableMapping struct {
	gtfsFile string
	table    string
	columns  []string
	pkColumn []string
	load     func(agency string, reader io.Reader) ([][]any, error)
}

var tableMappings = []tableMapping{
	{
		gtfsFile: "routes.txt",
		table:    "current_routes",
		columns:  []string{"route_id", "agency_id", "route_short_name"},
		pkColumn: []string{"route_id"},
		load:     loadRoutes,
	},
	{
		gtfsFile: "stops.txt",
		table:    "current_stops",
		columns:  []string{"stop_id", "stop_name", "stop_code", "stop_desc", "stop_lat", "stop_lon"},
		pkColumn: []string{"stop_id"},
		load:     loadStops,
	},
	{
		gtfsFile: "trips.txt",
		table:    "current_trips",
		columns:  []string{"trip_id", "route_id", "service_id", "direction_id", "headsign", "shape_id"},
		pkColumn: []string{"trip_id"},
		load:     loadTrips,
	},
	{
		gtfsFile: "stop_times.txt",
		table:    "current_stop_times",
		columns:  []string{"trip_id", "stop_sequence", "stop_id", "arrival_seconds", "departure_seconds"},
		pkColumn: []string{"trip_id", "stop_sequence"},
		load:     loadStopTimes,
	},
	{
		gtfsFile: "shapes.txt",
		table:    "current_shapes",
		columns:  []string{"agency_id", "shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence"},
		pkColumn: []string{"agency_id", "shape_id", "shape_pt_sequence"},
		load:     loadShapes,
	},
}

func loadRoutes(agency string, reader io.Reader) ([][]any, error) {
	var records []gtfs.Route
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	var rows [][]any
	seen := map[string]bool{}
	for _, record := range records {
		if record.ID == "" || seen[record.ID] {
			continue
		}
		seen[record.ID] = true

		rows = append(rows, []any{record.ID, agency, record.ShortName})
	}

	return rows, nil
}

func loadStops(agency string, reader io.Reader) ([][]any, error) {
	var records []gtfs.Stop
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	var rows [][]any
	seen := map[string]bool{}
	for _, record := range records {
		if record.ID == "" || seen[record.ID] {
			continue
		}
		seen[record.ID] = true

		rows = append(rows, []any{record.ID, record.Name, record.Code, record.Description, record.Latitude, record.Longitude})
	}

	return rows, nil
}

func loadTrips(agency string, reader io.Reader) ([][]any, error) {
	var records []gtfs.Trip
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	var rows [][]any
	seen := map[string]bool{}
	for _, record := range records {
		if record.ID == "" || seen[record.ID] {
			continue
		}
		seen[record.ID] = true

		rows = append(rows, []any{record.ID, record.RouteID, record.ServiceID, record.DirectionID, record.Headsign, record.ShapeID})
	}

	return rows, nil
}

func loadStopTimes(agency string, reader io.Reader) ([][]any, error) {
	var records []gtfs.StopTime
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	var rows [][]any
	seen := map[string]bool{}
	for _, record := range records {
		key := fmt.Sprintf("%s:%d", record.TripID, record.StopSequence)
		if record.TripID == "" || seen[key] {
			continue
		}
		seen[key] = true

		arrivalSeconds, err := gtfs.ParseTime(record.ArrivalTime)
		if err != nil {
			log.Debug().Str("trip", record.TripID).Int("sequence", record.StopSequence).Msg("Skipping stop time without arrival")
			continue
		}

		departureSeconds, err := gtfs.ParseOptionalTime(record.DepartureTime)
		if err != nil {
			departureSeconds = nil
		}

		rows = append(rows, []any{record.TripID, record.StopSequence, record.StopID, arrivalSeconds, departureSeconds})
	}

	return rows, nil
}

func loadShapes(agency string, reader io.Reader) ([][]any, error) {
	var records []gtfs.Shape
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	var rows [][]any
	seen := map[string]bool{}
	for _, record := range records {
		key := fmt.Sprintf("%s:%d", record.ID, record.PtSequence)
		if record.ID == "" || seen[key] {
			continue
		}
		seen[key] = true

		rows = append(rows, []any{agency, record.ID, record.PtLatitude, record.PtLongitude, record.PtSequence})
	}

	return rows, nil
}

// loadZip streams every GTFS file into a temp staging table, upserts into
// the live table, then deletes the agency's rows that the new feed no longer
// contains. FK ordering: parents are loaded first, children deleted first.
func loadZip(ctx context.Context, transaction pgx.Tx, agency string, zipPath string) error {
	// Tolerate rows with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})

	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	for _, mapping := range tableMappings {
		file, err := openZipFile(&archive.Reader, mapping.gtfsFile)
		if err != nil {
			return err
		}

		rows, err := mapping.load(agency, skipBOM(file))
		file.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", mapping.gtfsFile, err)
		}

		log.Info().Str("agency", agency).Str("file", mapping.gtfsFile).Int("rows", len(rows)).Msg("Loading file")

		if err := stageAndUpsert(ctx, transaction, mapping, rows); err != nil {
			return fmt.Errorf("loading %s: %w", mapping.gtfsFile, err)
		}
	}

	return deleteStaleRows(ctx, transaction, agency)
}

func openZipFile(archive *zip.Reader, name string) (io.ReadCloser, error) {
	for _, zipFile := range archive.File {
		if zipFile.Name == name {
			return zipFile.Open()
		}
	}

	return nil, fmt.Errorf("gtfs zip is missing %s", name)
}

// skipBOM drops a leading UTF-8 byte order mark some feeds carry.
func skipBOM(reader io.Reader) io.Reader {
	buffered := bufio.NewReader(reader)

	leading, err := buffered.Peek(3)
	if err == nil && leading[0] == 0xEF && leading[1] == 0xBB && leading[2] == 0xBF {
		buffered.Discard(3)
	}

	return buffered
}

func stageAndUpsert(ctx context.Context, transaction pgx.Tx, mapping tableMapping, rows [][]any) error {
	stagingTable := "staging_" + mapping.table

	if _, err := transaction.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stagingTable, mapping.table,
	)); err != nil {
		return err
	}

	if _, err := transaction.CopyFrom(ctx, pgx.Identifier{stagingTable}, mapping.columns, pgx.CopyFromRows(rows)); err != nil {
		return err
	}

	var assignments []string
	for _, column := range mapping.columns {
		isKey := false
		for _, pk := range mapping.pkColumn {
			if column == pk {
				isKey = true
			}
		}
		if !isKey {
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", column, column))
		}
	}

	columnList := strings.Join(mapping.columns, ", ")
	upsert := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		mapping.table, columnList, columnList, stagingTable,
		strings.Join(mapping.pkColumn, ", "), strings.Join(assignments, ", "),
	)

	_, err := transaction.Exec(ctx, upsert)
	return err
}

func deleteStaleRows(ctx context.Context, transaction pgx.Tx, agency string) error {
	statements := []string{
		`DELETE FROM current_stop_times st
		 USING current_trips t, current_routes r
		 WHERE st.trip_id = t.trip_id AND t.route_id = r.route_id AND r.agency_id = $1
		   AND NOT EXISTS (SELECT 1 FROM staging_current_stop_times s
		                   WHERE s.trip_id = st.trip_id AND s.stop_sequence = st.stop_sequence)`,

		`DELETE FROM current_trips t
		 USING current_routes r
		 WHERE t.route_id = r.route_id AND r.agency_id = $1
		   AND NOT EXISTS (SELECT 1 FROM staging_current_trips s WHERE s.trip_id = t.trip_id)`,

		`DELETE FROM current_routes r
		 WHERE r.agency_id = $1
		   AND NOT EXISTS (SELECT 1 FROM staging_current_routes s WHERE s.route_id = r.route_id)`,

		`DELETE FROM current_shapes sh
		 WHERE sh.agency_id = $1
		   AND NOT EXISTS (SELECT 1 FROM staging_current_shapes s
		                   WHERE s.shape_id = sh.shape_id AND s.shape_pt_sequence = sh.shape_pt_sequence)`,

		// Stops are shared between agencies, only drop fully orphaned ones
		`DELETE FROM current_stops st
		 WHERE NOT EXISTS (SELECT 1 FROM staging_current_stops s WHERE s.stop_id = st.stop_id)
		   AND NOT EXISTS (SELECT 1 FROM current_stop_times ct WHERE ct.stop_id = st.stop_id)`,
	}

	for _, statement := range statements {
		args := []any{agency}
		if !strings.Contains(statement, "$1") {
			args = nil
		}

		if _, err := transaction.Exec(ctx, statement, args...); err != nil {
			return err
		}
	}

	return nil
}
