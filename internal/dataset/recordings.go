package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Column names of a recordings export. Every other column is a feature.
const (
	ColumnSession = "session"
	ColumnPos     = "pos"
	ColumnLabel   = "y"
)

// Recordings is a flat table of feature rows, one per presented item, tagged
// with the recording session and the serial position within its list.
type Recordings struct {
	Session  []int
	Pos      []int
	Y        []int
	X        *mat.Dense
	Features []string
}

// Len returns the number of rows
func (r *Recordings) Len() int {
	return len(r.Y)
}

// Sessions returns the distinct session ids in ascending order
func (r *Recordings) Sessions() []int {
	return uniqueSorted(r.Session)
}

// ReadRecordings parses a CSV export with a header row containing session,
// pos and y columns plus one column per feature.
func ReadRecordings(r io.Reader) (*Recordings, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewDataError(errors.CodeMalformedData, "recordings file is empty")
		}
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeMalformedData, "failed to read header")
	}

	sessionCol, posCol, labelCol := -1, -1, -1
	var featureCols []int
	var featureNames []string
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case ColumnSession:
			sessionCol = i
		case ColumnPos:
			posCol = i
		case ColumnLabel:
			labelCol = i
		default:
			featureCols = append(featureCols, i)
			featureNames = append(featureNames, strings.TrimSpace(name))
		}
	}
	if sessionCol < 0 || labelCol < 0 {
		return nil, errors.NewDataError(errors.CodeMalformedData,
			"recordings header must contain session and y columns")
	}
	if len(featureCols) == 0 {
		return nil, errors.NewDataError(errors.CodeMalformedData, "recordings have no feature columns")
	}

	rec := &Recordings{Features: featureNames}
	var data []float64
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeMalformedData,
				fmt.Sprintf("failed to read line %d", line))
		}

		session, err := parseInt(row[sessionCol])
		if err != nil {
			return nil, lineError(line, ColumnSession, err)
		}
		label, err := parseInt(row[labelCol])
		if err != nil {
			return nil, lineError(line, ColumnLabel, err)
		}
		pos := 0
		if posCol >= 0 {
			if pos, err = parseInt(row[posCol]); err != nil {
				return nil, lineError(line, ColumnPos, err)
			}
		}
		for _, c := range featureCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return nil, lineError(line, header[c], err)
			}
			data = append(data, v)
		}
		rec.Session = append(rec.Session, session)
		rec.Pos = append(rec.Pos, pos)
		rec.Y = append(rec.Y, label)
	}

	if len(rec.Y) == 0 {
		return nil, errors.NewDataError(errors.CodeInsufficientData, "recordings contain no rows")
	}
	rec.X = mat.NewDense(len(rec.Y), len(featureCols), data)
	return rec, nil
}

// WriteRecordings writes rec in the format read by ReadRecordings.
func WriteRecordings(w io.Writer, rec *Recordings) error {
	writer := csv.NewWriter(w)
	_, d := rec.X.Dims()

	header := []string{ColumnSession, ColumnPos, ColumnLabel}
	for j := 0; j < d; j++ {
		if j < len(rec.Features) {
			header = append(header, rec.Features[j])
		} else {
			header = append(header, fmt.Sprintf("x%d", j))
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := range rec.Y {
		row[0] = strconv.Itoa(rec.Session[i])
		row[1] = strconv.Itoa(rec.Pos[i])
		row[2] = strconv.Itoa(rec.Y[i])
		for j, v := range rec.X.RawRowView(i) {
			row[3+j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// LeaveOneSessionOut holds out the session at index holdout of the sorted
// session ids for validation and trains on the rest. With normalize set,
// training rows are z-scored per session and the held-out session on its own
// statistics. Rows are chunked into sequences of seqLen within each session.
func (r *Recordings) LeaveOneSessionOut(holdout int, normalize bool, seqLen int) (*Split, error) {
	sessions := r.Sessions()
	if len(sessions) < 2 {
		return nil, errors.NewDataError(errors.CodeInsufficientData,
			fmt.Sprintf("leave-one-session-out needs at least 2 sessions, got %d", len(sessions)))
	}
	if holdout < 0 || holdout >= len(sessions) {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("holdout session index %d outside [0, %d)", holdout, len(sessions)))
	}
	held := sessions[holdout]

	var trainRows, validRows []int
	for i, s := range r.Session {
		if s == held {
			validRows = append(validRows, i)
		} else {
			trainRows = append(trainRows, i)
		}
	}

	trainX, trainY, trainSessions := r.subset(trainRows)
	validX, validY, validSessions := r.subset(validRows)
	if normalize {
		if err := StandardizeGroups(trainX, trainSessions); err != nil {
			return nil, err
		}
		if err := StandardizeGroups(validX, validSessions); err != nil {
			return nil, err
		}
	}

	train, err := chunkBySession(constants.PartitionTrain, trainX, trainY, trainSessions, seqLen)
	if err != nil {
		return nil, err
	}
	valid, err := chunkBySession(constants.PartitionValid, validX, validY, validSessions, seqLen)
	if err != nil {
		return nil, err
	}
	return &Split{Train: train, Valid: valid}, nil
}

func (r *Recordings) subset(rows []int) (*mat.Dense, []int, []int) {
	y := make([]int, len(rows))
	sessions := make([]int, len(rows))
	for k, i := range rows {
		y[k] = r.Y[i]
		sessions[k] = r.Session[i]
	}
	return gatherRows(r.X, rows), y, sessions
}

// chunkBySession cuts consecutive rows of each session into sequences so no
// sequence spans two sessions.
func chunkBySession(name string, x *mat.Dense, y, sessions []int, seqLen int) (*Partition, error) {
	if seqLen <= 0 {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("sequence length must be positive, got %d", seqLen))
	}
	var seqs []Sequence
	start := 0
	for i := 1; i <= len(sessions); i++ {
		if i < len(sessions) && sessions[i] == sessions[start] {
			continue
		}
		rows := i - start
		if rows >= seqLen {
			block := x.Slice(start, i, 0, x.RawMatrix().Cols).(*mat.Dense)
			part, err := FromFlat(name, block, y[start:i], seqLen)
			if err != nil {
				return nil, err
			}
			seqs = append(seqs, part.Sequences...)
		}
		start = i
	}
	return NewPartition(name, seqs)
}

func uniqueSorted(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	var out []int
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	// MATLAB exports write integers as floats.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, errors.NewDataError(errors.CodeMalformedData, fmt.Sprintf("%q is not an integer", s))
	}
	return int(f), nil
}

func lineError(line int, column string, err error) error {
	return errors.WrapError(err, errors.ErrorTypeData, errors.CodeMalformedData,
		fmt.Sprintf("line %d: invalid %s", line, column))
}
