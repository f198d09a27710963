package core

import (
	"fmt"

	"github.com/tsawler/vellum/internal/filters"
)

// Decode decodes the stream data according to the Filter(s) specified in the
// stream dictionary. Filter chains are applied left to right. The decoded
// bytes are cached, so repeated calls do not re-run the filters.
//
// DCTDecode and JPXDecode payloads are image codecs, not byte filters; any
// trailing occurrence of either ends the chain and the bytes accumulated so
// far are returned as-is for an image decoder to consume.
func (s *Stream) Decode() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}

	filterObj := s.Dict.Get("Filter")
	if filterObj == nil {
		s.decoded = s.Data
		return s.decoded, nil
	}

	paramsObj := s.Dict.Get("DecodeParms")
	if paramsObj == nil {
		paramsObj = s.Dict.Get("DP")
	}

	var decoded []byte
	var err error

	switch f := filterObj.(type) {
	case Name:
		decoded, err = decodeWithFilter(s.Data, string(f), paramsObjToDict(paramsObj))
		if err != nil {
			return nil, &FilterError{Filter: string(f), Cause: err}
		}

	case Array:
		decoded = s.Data
		for i, filter := range f {
			filterName, ok := filter.(Name)
			if !ok {
				return nil, &FilterError{
					Filter: fmt.Sprintf("#%d", i),
					Cause:  fmt.Errorf("filter entry is not a name: %T", filter),
				}
			}

			var params Dict
			if paramsArray, ok := paramsObj.(Array); ok {
				if i < len(paramsArray) {
					params = paramsObjToDict(paramsArray[i])
				}
			} else {
				params = paramsObjToDict(paramsObj)
			}

			decoded, err = decodeWithFilter(decoded, string(filterName), params)
			if err != nil {
				return nil, &FilterError{Filter: string(filterName), Cause: err}
			}
		}

	default:
		return nil, &FilterError{Filter: "Filter", Cause: fmt.Errorf("invalid Filter type: %T", filterObj)}
	}

	s.decoded = decoded
	return decoded, nil
}

// SetData replaces the raw stream bytes and drops any cached decoded form.
func (s *Stream) SetData(data []byte) {
	s.Data = data
	s.decoded = nil
}

// errUnsupportedFilter marks filters the engine knows about but cannot decode.
type errUnsupportedFilter string

func (e errUnsupportedFilter) Error() string {
	return fmt.Sprintf("unsupported filter: %s", string(e))
}

// decodeWithFilter applies a single decompression filter to data.
// The filterName should be a PDF filter name (e.g., "FlateDecode") or its
// inline-image abbreviation (e.g., "Fl").
func decodeWithFilter(data []byte, filterName string, params Dict) ([]byte, error) {
	switch filterName {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, dictToParams(params))

	case "LZWDecode", "LZW":
		return filters.LZWDecode(data, dictToParams(params))

	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data)

	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data)

	case "RunLengthDecode", "RL":
		return filters.RunLengthDecode(data)

	case "CCITTFaxDecode", "CCF":
		return filters.CCITTFaxDecode(data, dictToParams(params))

	case "DCTDecode", "DCT":
		// JPEG payload - hand back intact.
		return data, nil

	case "JPXDecode":
		// JPEG 2000 payload - hand back intact.
		return data, nil

	case "JBIG2Decode":
		return nil, errUnsupportedFilter(filterName)

	case "Crypt":
		// Identity Crypt filters arrive pre-decrypted; named crypt
		// filters beyond Identity are not supported.
		if params != nil {
			if name, ok := params.GetName("Name"); ok && name != "Identity" {
				return nil, errUnsupportedFilter("Crypt/" + string(name))
			}
		}
		return data, nil

	default:
		return nil, errUnsupportedFilter(filterName)
	}
}

// paramsObjToDict converts a DecodeParms object to a Dict.
// Returns nil if the object is nil, Null, or not a Dict.
func paramsObjToDict(obj Object) Dict {
	if obj == nil {
		return nil
	}

	if dict, ok := obj.(Dict); ok {
		return dict
	}

	return nil
}

// dictToParams converts a core.Dict to filters.Params, translating PDF object
// types to Go primitive types (Int->int, Real->float64, Bool->bool, etc.).
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}

	params := make(filters.Params)
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj.Value)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
