package dataimporter

import (
	"archive/zip"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})
}

func TestLoadRoutesSuppressesDuplicates(t *testing.T) {
	input := strings.NewReader(
		"route_id,route_short_name\n" +
			"R1,139\n" +
			"R1,999\n" +
			"R2,52\n")

	rows, err := loadRoutes("krk", input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// First occurrence wins
	assert.Equal(t, []any{"R1", "krk", "139"}, rows[0])
	assert.Equal(t, []any{"R2", "krk", "52"}, rows[1])
}

func TestLoadTripsNullableDirection(t *testing.T) {
	input := strings.NewReader(
		"trip_id,route_id,service_id,direction_id,trip_headsign,shape_id\n" +
			"T1,R1,S1,0,Centrum,SH1\n" +
			"T2,R1,S1,,Dworzec,SH1\n")

	rows, err := loadTrips("krk", input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	direction := rows[0][3].(*int16)
	require.NotNil(t, direction)
	assert.Equal(t, int16(0), *direction)

	assert.Nil(t, rows[1][3])
}

func TestLoadStopTimesParsesAfterMidnight(t *testing.T) {
	input := strings.NewReader(
		"trip_id,stop_sequence,stop_id,arrival_time,departure_time\n" +
			"T1,1,S1,25:30:00,25:30:30\n" +
			"T1,2,S2,25:40:00,\n" +
			"T1,2,S2,26:00:00,\n" + // duplicate PK, dropped
			"T2,1,S1,,\n") // empty arrival, dropped

	rows, err := loadStopTimes("krk", input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 91800, rows[0][3])
	assert.Equal(t, 91830, *(rows[0][4].(*int)))
	assert.Equal(t, 92400, rows[1][3])
	assert.Nil(t, rows[1][4])
}

func TestSkipBOM(t *testing.T) {
	withBOM := skipBOM(strings.NewReader("\xEF\xBB\xBFstop_id,stop_name\nS1,Rondo\n"))
	content, err := io.ReadAll(withBOM)
	require.NoError(t, err)
	assert.Equal(t, "stop_id,stop_name\nS1,Rondo\n", string(content))

	withoutBOM := skipBOM(strings.NewReader("stop_id\n"))
	content, err = io.ReadAll(withoutBOM)
	require.NoError(t, err)
	assert.Equal(t, "stop_id\n", string(content))
}

func TestLoadStopsFromBOMPrefixedFile(t *testing.T) {
	input := skipBOM(strings.NewReader(
		"\xEF\xBB\xBFstop_id,stop_name,stop_code,stop_desc,stop_lat,stop_lon\n" +
			"S1,Rondo Matecznego,RM01,,50.043,19.936\n"))

	rows, err := loadStops("krk", input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "S1", rows[0][0])
	assert.Equal(t, "Rondo Matecznego", rows[0][1])
}

func TestHashFileStableAcrossRuns(t *testing.T) {
	zipPath := writeTestZip(t)

	first, err := hashFile(zipPath)
	require.NoError(t, err)

	// Unchanged bytes mean an unchanged hash, which short-circuits the swap
	second, err := hashFile(zipPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other := writeTestZip(t)
	otherHash, err := hashFile(other)
	require.NoError(t, err)
	assert.Equal(t, first, otherHash)
}

func TestOpenZipFile(t *testing.T) {
	zipPath := writeTestZip(t)

	archive, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer archive.Close()

	file, err := openZipFile(&archive.Reader, "routes.txt")
	require.NoError(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "route_id")

	_, err = openZipFile(&archive.Reader, "fares.txt")
	assert.Error(t, err)
}

func writeTestZip(t *testing.T) string {
	t.Helper()

	file, err := os.CreateTemp(t.TempDir(), "gtfs-*.zip")
	require.NoError(t, err)

	writer := zip.NewWriter(file)

	entry, err := writer.Create("routes.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("route_id,route_short_name\nR1,139\n"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return file.Name()
}
