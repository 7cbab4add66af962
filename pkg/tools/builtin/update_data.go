package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/pkg/errors"
)

type DataUpdate struct {
	DataPoint string `json:"data_point" jsonschema:"required,description=The name of the data point"`
	Value     string `json:"value" jsonschema:"required,description=The value found for the data point"`
	Reference string `json:"reference" jsonschema:"required,description=The url the value was found at"`
}

type UpdateDataInput struct {
	DatasUpdate []DataUpdate `json:"datas_update" jsonschema:"required,description=The data points found"`
}

// NewUpdateDataTool writes values into the store. Unknown data points are
// reported back to the model instead of failing the call.
func NewUpdateDataTool(store *datapoints.Store) tools.Tool {
	return tools.NewFunc(UpdateDataToolName, func(ctx context.Context, in UpdateDataInput) (string, error) {
		var unknown []string
		for _, u := range in.DatasUpdate {
			err := store.Update(u.DataPoint, u.Value, u.Reference)
			var nf *datapoints.NotFoundError
			switch {
			case err == nil:
			case errors.As(err, &nf):
				unknown = append(unknown, u.DataPoint)
			default:
				return "", err
			}
		}

		state, err := json.Marshal(store.State())
		if err != nil {
			return "", err
		}

		ret := "data updated: " + string(state)
		if len(unknown) > 0 {
			ret += "\nunknown data points: " + strings.Join(unknown, ", ")
		}
		return ret, nil
	})
}
